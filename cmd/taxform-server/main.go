package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/taxform-filler/internal/config"
	"github.com/a3tai/taxform-filler/internal/httpapi"
	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/mcp"
	"github.com/a3tai/taxform-filler/internal/records"
	"github.com/a3tai/taxform-filler/internal/taxform"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. In stdio mode stdout carries the
// MCP protocol, so logs go to stderr and only when debug is enabled.
func setupLogging(cfg *config.Config) *slog.Logger {
	switch {
	case cfg.IsServerMode():
		return newLogger(cfg, os.Stdout)
	case cfg.IsDebug():
		return newLogger(cfg, os.Stderr)
	default:
		return newLogger(cfg, io.Discard)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.SlogLevel(),
		AddSource: cfg.IsDebug(),
	}
	if cfg.IsServerMode() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadRegistry returns the built-in mapping tables unless a directory
// replaces them
func loadRegistry(cfg *config.Config) (*mapping.Registry, error) {
	if cfg.MappingsDirectory != "" {
		return mapping.LoadDir(cfg.MappingsDirectory)
	}
	return mapping.Default()
}

func buildService(cfg *config.Config, logger *slog.Logger) (*taxform.Service, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping tables: %w", err)
	}
	return taxform.NewService(cfg.Service(), reg, logger)
}

// runServerMode serves the HTTP API until a signal arrives
func runServerMode(ctx context.Context, cfg *config.Config, svc *taxform.Service, logger *slog.Logger) error {
	var store records.Store
	if cfg.RecordsDirectory != "" {
		fs, err := records.NewFileStore(cfg.RecordsDirectory)
		if err != nil {
			return err
		}
		store = fs
	} else {
		logger.Warn("no records directory configured, record rendering is disabled")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := httpapi.New(svc, store, logger).Run(ctx, cfg.Address()); err != nil {
		return err
	}
	logger.Info("server stopped successfully")
	return nil
}

// runStdioMode serves MCP on stdio. The parent process controls our
// lifecycle; we exit when stdin closes.
func runStdioMode(ctx context.Context, cfg *config.Config, svc *taxform.Service, logger *slog.Logger) error {
	server, err := mcp.NewServer(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := setupLogging(cfg)
	slog.SetDefault(logger)

	if version != "dev" {
		cfg.Version = version
	}
	logger.Debug("starting", "config", cfg.String())

	svc, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.IsServerMode() {
		return runServerMode(ctx, cfg, svc, logger)
	}
	return runStdioMode(ctx, cfg, svc, logger)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Tax Form Filler\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}

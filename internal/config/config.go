package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/taxform-filler/internal/taxform"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the tax form server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Directories
	TemplateDirectory string
	RecordsDirectory  string // optional, enables the record render endpoints
	OutputDirectory   string // where MCP fills are written
	MappingsDirectory string // optional, replaces the embedded mapping tables

	// Fill behaviour
	GreyOut     bool
	StrictMatch bool
	KeepXFA     bool
	Workers     int // 0 means GOMAXPROCS

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum template size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio,
		Host:              DefaultHost,
		Port:              DefaultPort,
		TemplateDirectory: filepath.Join(currentDir, "templates"),
		OutputDirectory:   filepath.Join(currentDir, "output"),
		GreyOut:           true,
		Version:           "1.0.0",
		ServerName:        "taxform-filler",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("TAXFORM")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("templates", cfg.TemplateDirectory)
	viper.SetDefault("records", cfg.RecordsDirectory)
	viper.SetDefault("output", cfg.OutputDirectory)
	viper.SetDefault("mappings", cfg.MappingsDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("greyout", cfg.GreyOut)
	viper.SetDefault("strictmatch", cfg.StrictMatch)
	viper.SetDefault("keepxfa", cfg.KeepXFA)
	viper.SetDefault("workers", cfg.Workers)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("templates", cfg.TemplateDirectory, "Directory containing the blank form templates")
	pflag.String("records", cfg.RecordsDirectory, "Directory of stored form records (enables record rendering)")
	pflag.String("output", cfg.OutputDirectory, "Directory filled forms are written to (stdio mode)")
	pflag.String("mappings", cfg.MappingsDirectory, "Directory of mapping tables replacing the built-in ones")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum template file size in bytes")
	pflag.Bool("greyout", cfg.GreyOut, "Grey out and lock calculated fields")
	pflag.Bool("strictmatch", cfg.StrictMatch, "Disable substring matching of taxpayer and checkbox targets")
	pflag.Bool("keepxfa", cfg.KeepXFA, "Keep the XFA form description in filled documents")
	pflag.Int("workers", cfg.Workers, "Concurrent fills per batch (0 = number of CPUs)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port",
		"templates", "records", "output", "mappings",
		"loglevel", "maxfilesize",
		"greyout", "strictmatch", "keepxfa", "workers",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nTax Form Filler - fills IRS fillable PDF forms from tax return data\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --templates=/srv/irs                          "+
			"# stdio MCP server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --templates=/srv/irs            # HTTP server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --records=/srv/records --port=8081 "+
			"# HTTP server rendering stored records\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_MODE         Server mode\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_HOST         Server host\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_PORT         Server port\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_TEMPLATES    Template directory\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_RECORDS      Record directory\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_OUTPUT       Output directory\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_MAPPINGS     Mapping table directory\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_LOGLEVEL     Log level\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_MAXFILESIZE  Maximum template size\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_GREYOUT      Grey out calculated fields\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_STRICTMATCH  Disable substring matching\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_KEEPXFA      Keep XFA in filled forms\n")
		fmt.Fprintf(os.Stderr, "  TAXFORM_WORKERS      Batch worker count\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.TemplateDirectory = viper.GetString("templates")
	cfg.RecordsDirectory = viper.GetString("records")
	cfg.OutputDirectory = viper.GetString("output")
	cfg.MappingsDirectory = viper.GetString("mappings")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.GreyOut = viper.GetBool("greyout")
	cfg.StrictMatch = viper.GetBool("strictmatch")
	cfg.KeepXFA = viper.GetBool("keepxfa")
	cfg.Workers = viper.GetInt("workers")
}

func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.TemplateDirectory,
		&cfg.RecordsDirectory,
		&cfg.OutputDirectory,
		&cfg.MappingsDirectory,
	} {
		if *p == "" {
			continue
		}
		if expanded, err := filepath.Abs(*p); err == nil {
			*p = expanded
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port range only matters for server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.TemplateDirectory == "" {
		return errors.New("template directory cannot be empty")
	}
	if err := checkDir("template", c.TemplateDirectory); err != nil {
		return err
	}
	if c.RecordsDirectory != "" {
		if err := checkDir("records", c.RecordsDirectory); err != nil {
			return err
		}
	}
	if c.MappingsDirectory != "" {
		if err := checkDir("mappings", c.MappingsDirectory); err != nil {
			return err
		}
	}

	// Output directory is created on demand
	if c.OutputDirectory == "" {
		return errors.New("output directory cannot be empty")
	}
	if _, err := os.Stat(c.OutputDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.OutputDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create output directory %s: %w", c.OutputDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access output directory %s: %w", c.OutputDirectory, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// checkDir requires dir to be an existing directory
func checkDir(what, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s directory %s does not exist", what, dir)
		}
		return fmt.Errorf("cannot access %s directory %s: %w", what, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path %s is not a directory", what, dir)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// SlogLevel maps LogLevel onto a slog level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Service returns the fill service settings
func (c *Config) Service() taxform.Config {
	return taxform.Config{
		TemplateDir:    c.TemplateDirectory,
		MaxFileSize:    c.MaxFileSize,
		StrictMatch:    c.StrictMatch,
		DisableGreyOut: !c.GreyOut,
		KeepXFA:        c.KeepXFA,
		Workers:        c.Workers,
	}
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Templates: %s, Records: %s, Output: %s, "+
		"LogLevel: %s, MaxFileSize: %d, GreyOut: %t, StrictMatch: %t}",
		c.Mode, c.Host, c.Port, c.TemplateDirectory, c.RecordsDirectory, c.OutputDirectory,
		c.LogLevel, c.MaxFileSize, c.GreyOut, c.StrictMatch)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a3tai/taxform-filler/internal/config"
)

const testVersion = "1.2.3"

func TestPrintVersion(t *testing.T) {
	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w

	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	version = testVersion
	buildTime = "2025-12-01_10:30:00"
	gitCommit = "abc123"

	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
		os.Stdout = originalStdout
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printVersion()
		w.Close()
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	<-done

	output := buf.String()
	for _, expected := range []string{
		"Tax Form Filler",
		"Version: " + testVersion,
		"Build Time: 2025-12-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantJSON  bool
		wantDebug bool
		wantInfo  bool
	}{
		{
			name:     "server mode logs JSON",
			cfg:      &config.Config{Mode: config.ModeServer, LogLevel: "info"},
			wantJSON: true,
			wantInfo: true,
		},
		{
			name:      "stdio debug logs text",
			cfg:       &config.Config{Mode: config.ModeStdio, LogLevel: "debug"},
			wantDebug: true,
			wantInfo:  true,
		},
		{
			name:     "warn drops info",
			cfg:      &config.Config{Mode: config.ModeServer, LogLevel: "warn"},
			wantJSON: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)
			ctx := context.Background()

			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}

			logger.Error("boom", "form", "form_1040")
			line := buf.Bytes()
			if tt.wantJSON {
				var rec map[string]any
				if err := json.Unmarshal(line, &rec); err != nil {
					t.Fatalf("expected JSON log line, got %q: %v", line, err)
				}
				if rec["form"] != "form_1040" {
					t.Errorf("form attribute = %v", rec["form"])
				}
			} else if !strings.Contains(string(line), "form=form_1040") {
				t.Errorf("expected text log line, got %q", line)
			}
		})
	}
}

func TestSetupLogging_StdioQuietUnlessDebug(t *testing.T) {
	logger := setupLogging(&config.Config{Mode: config.ModeStdio, LogLevel: "info"})
	if logger == nil {
		t.Fatal("setupLogging() returned nil")
	}
	// io.Discard handler still honours the level
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
}

func TestBuildService(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates := t.TempDir()

	svc, err := buildService(&config.Config{TemplateDirectory: templates, GreyOut: true}, logger)
	if err != nil {
		t.Fatalf("buildService() unexpected error: %v", err)
	}
	if len(svc.Forms()) == 0 {
		t.Error("built-in registry should list forms")
	}

	mappings := t.TempDir()
	tables := map[string]string{
		"templates.yaml": "forms:\n  form_w9:\n    title: Form W-9\n    template: fw9.pdf\n",
		"form_w9.yaml":   "fields:\n  name: f1_1[0]\n",
	}
	for name, body := range tables {
		if err := os.WriteFile(filepath.Join(mappings, name), []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	svc, err = buildService(&config.Config{TemplateDirectory: templates, MappingsDirectory: mappings}, logger)
	if err != nil {
		t.Fatalf("buildService() with mappings unexpected error: %v", err)
	}
	forms := svc.Forms()
	if len(forms) != 1 || forms[0].Form != "form_w9" {
		t.Errorf("Forms() = %+v, want only form_w9", forms)
	}

	_, err = buildService(&config.Config{TemplateDirectory: templates, MappingsDirectory: templates}, logger)
	if err == nil || !strings.Contains(err.Error(), "failed to load mapping tables") {
		t.Errorf("buildService() with empty mappings dir error = %v", err)
	}
}

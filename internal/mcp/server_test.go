package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/taxform-filler/internal/acroform"
	"github.com/a3tai/taxform-filler/internal/config"
	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/taxform"
	"github.com/a3tai/taxform-filler/internal/testutil"
)

const page1 = "topmostSubform[0].Page1[0]."

const wagesPayload = `{"taxpayer": {"first_name": "John", "last_name": "Doe"},
	"fields": {"1a": {"value": "75000", "can_be_modified": false}, "7": {"value": "12"}}}`

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Mode:              "stdio",
		TemplateDirectory: filepath.Join(dir, "templates"),
		OutputDirectory:   filepath.Join(dir, "output"),
		Version:           "1.0.0",
		ServerName:        "test-server",
		LogLevel:          "info",
		MaxFileSize:       1024 * 1024,
		GreyOut:           true,
	}
	if err := os.MkdirAll(cfg.TemplateDirectory, 0o755); err != nil {
		t.Fatalf("failed to create template dir: %v", err)
	}
	testutil.WriteForm(t, cfg.TemplateDirectory, "f1040.pdf", testutil.FormSpec{Fields: []testutil.FieldSpec{
		{Name: page1 + "f1_14[0]"},
		{Name: page1 + "f1_15[0]"},
		{Name: page1 + "f1_47[0]"},
		{Name: page1 + "c1_1[0]", Kind: testutil.Checkbox},
	}})

	reg, err := mapping.Default()
	if err != nil {
		t.Fatalf("failed to load mappings: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := taxform.NewService(cfg.Service(), reg, logger)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	server, err := NewServer(cfg, svc, logger)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server, cfg
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestNewServer(t *testing.T) {
	server, cfg := newTestServer(t)

	if server.config != cfg {
		t.Error("server config not set correctly")
	}
	if server.mcpServer == nil {
		t.Error("mcpServer should be initialized")
	}
	if server.output.Dir() != cfg.OutputDirectory {
		t.Errorf("output root = %s, want %s", server.output.Dir(), cfg.OutputDirectory)
	}
}

func TestNewServer_Errors(t *testing.T) {
	_, err := NewServer(nil, &taxform.Service{}, nil)
	if err == nil {
		t.Error("expected error for nil config")
	}

	_, err = NewServer(&config.Config{OutputDirectory: t.TempDir()}, nil, nil)
	if err == nil {
		t.Error("expected error for nil service")
	}

	_, err = NewServer(&config.Config{}, &taxform.Service{}, nil)
	if err == nil {
		t.Error("expected error for empty output directory")
	}
}

func TestServer_HandleFill(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleFill(context.Background(), callRequest(map[string]any{
		"form":    "form_1040",
		"payload": wagesPayload,
		"output":  "john",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	path := filepath.Join(cfg.OutputDirectory, "john.pdf")
	for _, want := range []string{"Filled form_1040", path, "Line items filled: 1", "Greyed out: 1",
		"Keys without a matching template field: 7\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("result should contain %q, got: %s", want, text)
		}
	}

	doc, err := acroform.Open(path, acroform.Options{})
	if err != nil {
		t.Fatalf("filled form not readable: %v", err)
	}
	defer doc.Close()
	for _, f := range doc.Fields() {
		switch f.Name() {
		case page1 + "f1_47[0]":
			if f.Value() != "75000" || !f.ReadOnly() {
				t.Errorf("line 1a = %q read-only=%t, want 75000 locked", f.Value(), f.ReadOnly())
			}
		case page1 + "f1_14[0]":
			if f.Value() != "John" {
				t.Errorf("first name = %q, want John", f.Value())
			}
		}
	}
}

func TestServer_HandleFill_Options(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleFill(context.Background(), callRequest(map[string]any{
		"form": "form_1040",
		"payload": map[string]any{
			"taxpayer": map[string]any{"first_name": "Jane"},
			"fields":   map[string]any{"1a": map[string]any{"value": 1200.5, "can_be_modified": false}},
		},
		"grey_out": false,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}

	entries, err := os.ReadDir(cfg.OutputDirectory)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one generated output file, got %v (%v)", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "form_1040_") {
		t.Errorf("generated name = %s", entries[0].Name())
	}
	if !strings.Contains(extractTextFromResult(result), "Greyed out: 0") {
		t.Errorf("grey_out=false should leave fields editable: %s", extractTextFromResult(result))
	}
}

func TestServer_HandleFill_Errors(t *testing.T) {
	server, cfg := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing form", map[string]any{"payload": wagesPayload}, "form"},
		{"missing payload", map[string]any{"form": "form_1040"}, "payload"},
		{"payload wrong type", map[string]any{"form": "form_1040", "payload": 42}, "JSON string or object"},
		{"invalid payload", map[string]any{"form": "form_1040", "payload": `{"taxpayer": {}}`}, "INVALID_PAYLOAD"},
		{"unknown form", map[string]any{"form": "form_9999", "payload": wagesPayload}, "UNKNOWN_FORM"},
		{"template missing", map[string]any{"form": "schedule_a", "payload": wagesPayload}, "TEMPLATE_MISSING"},
		{"escaping output", map[string]any{"form": "form_1040", "payload": wagesPayload, "output": "../x.pdf"},
			"outside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleFill(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler should not return error, got: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected an error result")
			}
			if text := extractTextFromResult(result); !strings.Contains(text, tt.want) {
				t.Errorf("error should mention %q, got: %s", tt.want, text)
			}
		})
	}

	if entries, _ := os.ReadDir(cfg.OutputDirectory); len(entries) != 0 {
		t.Errorf("failed fills should not write output, found %d file(s)", len(entries))
	}
}

func TestServer_HandleList(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handleList(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{"form_1040", "f1040.pdf (installed)", "schedule_a", "(missing)", "16026",
		"No field mapping"} {
		if !strings.Contains(text, want) {
			t.Errorf("list should contain %q, got: %s", want, text)
		}
	}
}

func TestServer_HandleFieldsAndCoverage(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handleFields(context.Background(), callRequest(map[string]any{"form": "form_1040"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, "4 field(s)") || !strings.Contains(text, "checkbox") {
		t.Errorf("unexpected fields output: %s", text)
	}

	result, err = server.handleCoverage(context.Background(), callRequest(map[string]any{"form": "form_1040"}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text = extractTextFromResult(result)
	if !strings.Contains(text, "Mapping coverage for form_1040") || !strings.Contains(text, "exact") {
		t.Errorf("unexpected coverage output: %s", text)
	}

	result, _ = server.handleCoverage(context.Background(), callRequest(map[string]any{"form": "schedule_e"}))
	if !result.IsError || !strings.Contains(extractTextFromResult(result), "NO_MAPPING_FOR_FORM") {
		t.Errorf("expected no-mapping error, got: %s", extractTextFromResult(result))
	}
}

func TestServer_HandleServerInfo(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{"test-server v1.0.0", cfg.TemplateDirectory, "✓ form_1040", "✗ schedule_a",
		"taxform_fill"} {
		if !strings.Contains(text, want) {
			t.Errorf("server info should contain %q, got: %s", want, text)
		}
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	server, _ := newTestServer(t)
	emptyRequest := callRequest(map[string]any{})

	handlers := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	}{
		{"Fill", server.handleFill},
		{"Fields", server.handleFields},
		{"Coverage", server.handleCoverage},
	}

	for _, h := range handlers {
		t.Run(h.name, func(t *testing.T) {
			result, err := h.handler(context.Background(), emptyRequest)
			if err != nil {
				t.Errorf("handler should not return error, got: %v", err)
			}
			if result == nil {
				t.Fatal("result should not be nil")
			}
			if !result.IsError {
				t.Errorf("expected error result, got: %s", extractTextFromResult(result))
			}
		})
	}
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/taxform-filler/internal/config"
	"github.com/a3tai/taxform-filler/internal/descriptions"
	"github.com/a3tai/taxform-filler/internal/security"
	"github.com/a3tai/taxform-filler/internal/taxform"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	svc       *taxform.Service
	output    *security.Root
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, svc *taxform.Service, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("taxform service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	output, err := security.NewRoot(cfg.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is fixed
	)

	s := &Server{
		config:    cfg,
		svc:       svc,
		output:    output,
		logger:    logger,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	fillTool := mcp.NewTool(
		"taxform_fill",
		mcp.WithDescription(descriptions.GetToolDescription("taxform_fill")),
		mcp.WithString("form",
			mcp.Required(),
			mcp.Description("Form name, e.g. form_1040 or schedule_a (see taxform_list)"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description(`JSON payload: {"taxpayer": {...}, "fields": {"<line>": {"value": ...}}}`),
		),
		mcp.WithBoolean("grey_out",
			mcp.Description("Lock and shade fields marked can_be_modified=false (default true)"),
		),
		mcp.WithString("output",
			mcp.Description("File name for the filled PDF inside the output directory (default: generated)"),
		),
	)
	s.mcpServer.AddTool(fillTool, s.handleFill)

	listTool := mcp.NewTool(
		"taxform_list",
		mcp.WithDescription(descriptions.GetToolDescription("taxform_list")),
	)
	s.mcpServer.AddTool(listTool, s.handleList)

	fieldsTool := mcp.NewTool(
		"taxform_fields",
		mcp.WithDescription(descriptions.GetToolDescription("taxform_fields")),
		mcp.WithString("form",
			mcp.Required(),
			mcp.Description("Form name whose template fields to list"),
		),
	)
	s.mcpServer.AddTool(fieldsTool, s.handleFields)

	coverageTool := mcp.NewTool(
		"taxform_coverage",
		mcp.WithDescription(descriptions.GetToolDescription("taxform_coverage")),
		mcp.WithString("form",
			mcp.Required(),
			mcp.Description("Form name whose mapping coverage to check"),
		),
	)
	s.mcpServer.AddTool(coverageTool, s.handleCoverage)

	infoTool := mcp.NewTool(
		"taxform_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("taxform_server_info")),
	)
	s.mcpServer.AddTool(infoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	form, err := request.RequireString("form")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	payload, err := payloadArgument(args["payload"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	skipGreyOut := false
	if on, ok := args["grey_out"].(bool); ok {
		skipGreyOut = !on
	}

	name, _ := args["output"].(string)
	if name == "" {
		name = fmt.Sprintf("%s_%s.pdf", form, uuid.NewString())
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	path, err := s.output.Resolve(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.svc.Fill(ctx, taxform.FillRequest{
		Form:        form,
		Payload:     payload,
		SkipGreyOut: skipGreyOut,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.output.EnsureDir(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPerm); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot create output directory: %v", err)), nil
	}
	if err := os.WriteFile(path, result.PDF, 0o600); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot write filled form: %v", err)), nil
	}
	s.logger.Debug("filled form written", "form", form, "path", path, "bytes", len(result.PDF))

	return mcp.NewToolResultText(formatFillResult(path, result)), nil
}

// payloadArgument accepts the payload as a JSON string or as an object
func payloadArgument(v any) (*taxform.Payload, error) {
	switch p := v.(type) {
	case nil:
		return nil, fmt.Errorf("required argument \"payload\" not found")
	case string:
		return taxform.ParsePayload([]byte(p))
	case map[string]any:
		// round trip so numbers become json.Number like a string payload
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("payload is not serialisable: %w", err)
		}
		return taxform.ParsePayload(data)
	default:
		return nil, fmt.Errorf("payload must be a JSON string or object, got %T", v)
	}
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatForms(s.svc.Forms())), nil
}

func (s *Server) handleFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	form, err := request.RequireString("form")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fields, err := s.svc.Fields(ctx, form)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatFields(form, fields)), nil
}

func (s *Server) handleCoverage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	form, err := request.RequireString("form")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.svc.Coverage(ctx, form)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatCoverage(report)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses, err := s.svc.CheckTemplates(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatServerInfo(statuses)), nil
}

// Formatting functions
func formatFillResult(path string, result *taxform.FillResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filled %s\n", result.Form)
	fmt.Fprintf(&b, "Saved to: %s\n", path)
	fmt.Fprintf(&b, "Size: %d bytes\n", len(result.PDF))
	fmt.Fprintf(&b, "Line items filled: %d\n", result.Stats.Filled)
	fmt.Fprintf(&b, "Greyed out: %d\n", result.Stats.Greyed)
	fmt.Fprintf(&b, "Taxpayer fields filled: %d\n", result.Stats.TaxpayerFilled)
	fmt.Fprintf(&b, "Checkboxes set: %d\n", result.Stats.CheckboxesFilled)
	if len(result.Stats.Unresolved) > 0 {
		fmt.Fprintf(&b, "\n⚠️  Keys without a matching template field: %s\n",
			strings.Join(result.Stats.Unresolved, ", "))
	}
	return b.String()
}

func formatForms(forms []taxform.FormInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d registered form(s)\n", len(forms))
	for i, f := range forms {
		fmt.Fprintf(&b, "\n%d. %s - %s\n", i+1, f.Form, f.Title)
		fmt.Fprintf(&b, "   Template: %s", f.Template)
		if f.TemplatePresent {
			b.WriteString(" (installed)\n")
		} else {
			b.WriteString(" (missing)\n")
		}
		if !f.HasMapping {
			b.WriteString("   No field mapping: cannot be filled\n")
		}
		if len(f.IDs) > 0 {
			ids := make([]string, len(f.IDs))
			for j, id := range f.IDs {
				ids[j] = fmt.Sprint(id)
			}
			fmt.Fprintf(&b, "   Record ids: %s\n", strings.Join(ids, ", "))
		}
	}
	return b.String()
}

func formatFields(form string, fields []taxform.FieldInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d field(s)\n\n", form, len(fields))
	for _, f := range fields {
		fmt.Fprintf(&b, "p%d %-8s %s", f.Page, f.Kind, f.Name)
		if len(f.States) > 0 {
			fmt.Fprintf(&b, " states=[%s]", strings.Join(f.States, ","))
		}
		if f.Value != "" {
			fmt.Fprintf(&b, " value=%q", f.Value)
		}
		if f.ReadOnly {
			b.WriteString(" read-only")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatCoverage(c *taxform.Coverage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mapping coverage for %s (%s)\n", c.Form, c.Template)
	fmt.Fprintf(&b, "Template fields: %d\n", c.FieldCount)
	fmt.Fprintf(&b, "Resolved targets: %d of %d (%.1f%%)\n\n", c.Resolved, c.Resolved+c.Unresolved, c.Percent())

	for _, e := range c.Entries {
		key := e.Key
		if e.Option != "" {
			key += "=" + e.Option
		}
		fmt.Fprintf(&b, "%-10s %-32s %-9s %s\n", e.Table, key, e.Match, e.Target)
	}

	if len(c.UnmappedFields) > 0 {
		fmt.Fprintf(&b, "\nUnmapped template fields (%d):\n", len(c.UnmappedFields))
		for _, name := range c.UnmappedFields {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}
	return b.String()
}

func (s *Server) formatServerInfo(statuses []taxform.TemplateStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "📁 Template Directory: %s\n", s.config.TemplateDirectory)
	fmt.Fprintf(&b, "📂 Output Directory: %s\n", s.output.Dir())
	fmt.Fprintf(&b, "📏 Max Template Size: %d MB\n\n", s.config.MaxFileSize/(1024*1024))

	b.WriteString("🗂️  Templates:\n")
	for _, st := range statuses {
		if st.Valid {
			fmt.Fprintf(&b, "   ✓ %s (%d pages)\n", st.Form, st.Pages)
		} else {
			fmt.Fprintf(&b, "   ✗ %s: %s\n", st.Form, st.Message)
		}
	}

	b.WriteString("\n🛠️  Available Tools:\n")
	for _, name := range descriptions.GetAllToolNames() {
		fmt.Fprintf(&b, "   • %s\n", name)
	}
	return b.String()
}

// Run serves MCP over standard I/O until ctx is done or stdin closes
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Debug("starting MCP server on stdio",
		"templates", s.config.TemplateDirectory,
		"output", s.output.Dir())

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

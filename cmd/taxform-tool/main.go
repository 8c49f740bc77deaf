package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/a3tai/taxform-filler/internal/acroform"
	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/taxform"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type options struct {
	templates string
	mappings  string
	format    string
	output    string
	noGreyOut bool
	strict    bool
	verbose   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := pflag.NewFlagSet("taxform-tool", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.templates, "templates", envOr("TAXFORM_TEMPLATES", "templates"), "Template directory")
	fs.StringVar(&opts.mappings, "mappings", os.Getenv("TAXFORM_MAPPINGS"), "Mapping table directory (default: built-in)")
	fs.StringVarP(&opts.format, "format", "f", formatText, "Output format: text, json")
	fs.StringVarP(&opts.output, "output", "o", "", "Output file for fill (default: <form>_filled.pdf)")
	fs.BoolVar(&opts.noGreyOut, "no-grey-out", false, "Leave calculated fields editable")
	fs.BoolVar(&opts.strict, "strict", false, "Disable substring matching")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log fill diagnostics to stderr")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.format != formatText && opts.format != formatJSON {
		fmt.Fprintf(stderr, "Error: unsupported output format: %s\n", opts.format)
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr, fs)
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "fields" && len(cmdArgs) == 1 && strings.EqualFold(filepath.Ext(cmdArgs[0]), ".pdf") {
		return report(stderr, describeFile(stdout, opts, cmdArgs[0]))
	}

	svc, err := newService(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	switch {
	case cmd == "forms" && len(cmdArgs) == 0:
		return report(stderr, listForms(stdout, opts, svc))
	case cmd == "check" && len(cmdArgs) == 0:
		return report(stderr, checkTemplates(ctx, stdout, opts, svc))
	case cmd == "fields" && len(cmdArgs) == 1:
		return report(stderr, listFields(ctx, stdout, opts, svc, cmdArgs[0]))
	case cmd == "coverage" && len(cmdArgs) == 1:
		return report(stderr, coverage(ctx, stdout, opts, svc, cmdArgs[0]))
	case cmd == "fill" && len(cmdArgs) == 2:
		return report(stderr, fill(ctx, stdin, stdout, opts, svc, cmdArgs[0], cmdArgs[1]))
	default:
		fmt.Fprintf(stderr, "Error: unknown command or wrong arguments: %s\n\n", strings.Join(rest, " "))
		printUsage(stderr, fs)
		return 2
	}
}

func report(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "❌ %v\n", err)
	return 1
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newService(opts options, stderr io.Writer) (*taxform.Service, error) {
	var (
		reg *mapping.Registry
		err error
	)
	if opts.mappings != "" {
		reg, err = mapping.LoadDir(opts.mappings)
	} else {
		reg, err = mapping.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping tables: %w", err)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	return taxform.NewService(taxform.Config{
		TemplateDir:    opts.templates,
		StrictMatch:    opts.strict,
		DisableGreyOut: opts.noGreyOut,
	}, reg, logger)
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Tax Form Tool - inspect templates and fill IRS forms from the command line")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  taxform-tool [OPTIONS] forms")
	fmt.Fprintln(w, "  taxform-tool [OPTIONS] check")
	fmt.Fprintln(w, "  taxform-tool [OPTIONS] fields <form|file.pdf>")
	fmt.Fprintln(w, "  taxform-tool [OPTIONS] coverage <form>")
	fmt.Fprintln(w, "  taxform-tool [OPTIONS] fill <form> <payload.json|->")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  taxform-tool --templates=/srv/irs coverage form_1040")
	fmt.Fprintln(w, "  taxform-tool fields ~/Downloads/f1040sb.pdf")
	fmt.Fprintln(w, "  taxform-tool fill form_1040 return.json -o john_1040.pdf")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeFile(w io.Writer, opts options, path string) error {
	doc, err := acroform.Open(path, acroform.Options{})
	if err != nil {
		return fmt.Errorf("cannot read form fields of %s: %w", path, err)
	}
	defer doc.Close()
	return printFields(w, opts, path, taxform.DescribeFields(doc))
}

func listFields(ctx context.Context, w io.Writer, opts options, svc *taxform.Service, form string) error {
	fields, err := svc.Fields(ctx, form)
	if err != nil {
		return err
	}
	return printFields(w, opts, form, fields)
}

func printFields(w io.Writer, opts options, name string, fields []taxform.FieldInfo) error {
	if opts.format == formatJSON {
		return writeJSON(w, map[string]any{"source": name, "field_count": len(fields), "fields": fields})
	}
	if len(fields) == 0 {
		fmt.Fprintf(w, "⚠️  No form fields detected in %s\n", name)
		return nil
	}
	fmt.Fprintf(w, "📋 %s: %d field(s)\n\n", name, len(fields))
	for _, f := range fields {
		fmt.Fprintf(w, "p%d  %-9s %s", f.Page, f.Kind, f.Name)
		if len(f.States) > 0 {
			fmt.Fprintf(w, "  states=[%s]", strings.Join(f.States, ","))
		}
		if f.Value != "" {
			fmt.Fprintf(w, "  value=%q", f.Value)
		}
		if f.ReadOnly {
			fmt.Fprint(w, "  read-only")
		}
		fmt.Fprintln(w)
	}
	return nil
}

func listForms(w io.Writer, opts options, svc *taxform.Service) error {
	forms := svc.Forms()
	if opts.format == formatJSON {
		return writeJSON(w, forms)
	}
	for _, f := range forms {
		status := "✅"
		switch {
		case !f.HasMapping:
			status = "➖"
		case !f.TemplatePresent:
			status = "❌"
		}
		fmt.Fprintf(w, "%s %-12s %-14s %s\n", status, f.Form, f.Template, f.Title)
	}
	return nil
}

func checkTemplates(ctx context.Context, w io.Writer, opts options, svc *taxform.Service) error {
	statuses, err := svc.CheckTemplates(ctx)
	if err != nil {
		return err
	}
	if opts.format == formatJSON {
		return writeJSON(w, statuses)
	}
	for _, st := range statuses {
		if st.Valid {
			fmt.Fprintf(w, "✅ %-12s %d page(s)  %s\n", st.Form, st.Pages, st.Path)
		} else {
			fmt.Fprintf(w, "❌ %-12s %s\n", st.Form, st.Message)
		}
	}
	return nil
}

func coverage(ctx context.Context, w io.Writer, opts options, svc *taxform.Service, form string) error {
	c, err := svc.Coverage(ctx, form)
	if err != nil {
		return err
	}
	if opts.format == formatJSON {
		return writeJSON(w, c)
	}

	fmt.Fprintf(w, "📊 %s (%s): %d of %d targets resolved (%.1f%%), %d template field(s)\n\n",
		c.Form, filepath.Base(c.Template), c.Resolved, c.Resolved+c.Unresolved, c.Percent(), c.FieldCount)
	for _, e := range c.Entries {
		key := e.Key
		if e.Option != "" {
			key += "=" + e.Option
		}
		mark := "✓"
		if e.Match == taxform.MatchNone.String() {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %-10s %-32s %-9s %s\n", mark, e.Table, key, e.Match, e.Target)
	}
	if len(c.UnmappedFields) > 0 {
		fmt.Fprintf(w, "\nUnmapped template fields (%d):\n", len(c.UnmappedFields))
		for _, name := range c.UnmappedFields {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	return nil
}

func fill(ctx context.Context, stdin io.Reader, w io.Writer, opts options, svc *taxform.Service,
	form, payloadPath string,
) error {
	var (
		data []byte
		err  error
	)
	if payloadPath == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(payloadPath)
	}
	if err != nil {
		return fmt.Errorf("cannot read payload: %w", err)
	}

	result, err := svc.Generate(ctx, taxform.FormData{Form: form, Data: data})
	if err != nil {
		return err
	}

	out := opts.output
	if out == "" {
		out = form + "_filled.pdf"
	}
	if err := os.WriteFile(out, result.PDF, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", out, err)
	}

	if opts.format == formatJSON {
		return writeJSON(w, map[string]any{"form": result.Form, "output": out, "stats": result.Stats})
	}
	fmt.Fprintf(w, "✅ %s written to %s (%d bytes)\n", result.Form, out, len(result.PDF))
	fmt.Fprintf(w, "   line items: %d, greyed: %d, taxpayer: %d, checkboxes: %d\n",
		result.Stats.Filled, result.Stats.Greyed, result.Stats.TaxpayerFilled, result.Stats.CheckboxesFilled)
	if len(result.Stats.Unresolved) > 0 {
		fmt.Fprintf(w, "⚠️  unresolved: %s\n", strings.Join(result.Stats.Unresolved, ", "))
	}
	return nil
}

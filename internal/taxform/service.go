// Package taxform fills IRS fillable-form templates from tax-return payloads.
//
// A fill resolves each semantic key of a form's mapping tables against the
// widgets of a freshly loaded template, writes the payload values, and
// serialises the result. Templates are never written.
package taxform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/a3tai/taxform-filler/internal/acroform"
	"github.com/a3tai/taxform-filler/internal/mapping"
)

// Config configures a Service
type Config struct {
	TemplateDir    string
	MaxFileSize    int64
	StrictMatch    bool
	DisableGreyOut bool
	KeepXFA        bool
	// Workers bounds concurrent fills of a batch; 0 means GOMAXPROCS
	Workers int
	// Open overrides how templates are loaded
	Open OpenFunc
}

// Service is the entry point used by the HTTP, MCP and CLI front ends
type Service struct {
	cfg      Config
	registry *mapping.Registry
	filler   *Filler
	logger   *slog.Logger
}

// NewService creates a new fill service
func NewService(cfg Config, registry *mapping.Registry, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Open == nil {
		cfg.Open = OpenAcroForm(acroform.Options{KeepXFA: cfg.KeepXFA})
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	filler, err := NewFiller(FillerConfig{
		Registry:       registry,
		TemplateDir:    cfg.TemplateDir,
		Open:           cfg.Open,
		StrictMatch:    cfg.StrictMatch,
		DisableGreyOut: cfg.DisableGreyOut,
		MaxFileSize:    cfg.MaxFileSize,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		filler:   filler,
		logger:   logger,
	}, nil
}

// Registry returns the mapping registry the service fills from
func (s *Service) Registry() *mapping.Registry {
	return s.registry
}

// Generate normalises src and fills its form with default options
func (s *Service) Generate(ctx context.Context, src Source) (*FillResult, error) {
	form, payload, err := normalize(s.registry, src)
	if err != nil {
		return nil, err
	}
	return s.Fill(ctx, FillRequest{Form: form, Payload: payload})
}

// Fill fills one form
func (s *Service) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	result, err := s.filler.Fill(ctx, req)
	if err != nil {
		s.logger.Warn("fill failed", "form", req.Form, "kind", KindOf(err).String(), "error", err)
		return nil, err
	}
	s.logger.Info("form generated",
		"form", result.Form,
		"filled", result.Stats.Filled,
		"greyed", result.Stats.Greyed,
		"unresolved", len(result.Stats.Unresolved))
	return result, nil
}

// BatchItem is one request of a batch
type BatchItem struct {
	ID      string
	Request FillRequest
}

// BatchResult pairs a batch item with its outcome
type BatchResult struct {
	ID     string
	Form   string
	Result *FillResult
	Err    error
}

// FillBatch fills every item on a bounded worker pool. Item failures are
// reported per result; the returned error is only set when ctx ends first.
// Results keep the order of items.
func (s *Service) FillBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))

	p := pool.New().WithMaxGoroutines(s.cfg.Workers).WithContext(ctx)
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		results[i] = BatchResult{ID: id, Form: item.Request.Form}

		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			res, err := s.filler.Fill(ctx, item.Request)
			results[i].Result, results[i].Err = res, err
			return nil
		})
	}
	_ = p.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("batch generated", "items", len(items), "failed", failed)

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// FormInfo describes a registered form
type FormInfo struct {
	Form            string  `json:"form"`
	Title           string  `json:"title"`
	Template        string  `json:"template"`
	IDs             []int64 `json:"ids,omitempty"`
	HasMapping      bool    `json:"has_mapping"`
	TemplatePresent bool    `json:"template_present"`
}

// Forms lists every registered form
func (s *Service) Forms() []FormInfo {
	forms := s.registry.Forms()
	infos := make([]FormInfo, 0, len(forms))
	for _, form := range forms {
		tpl, _ := s.registry.Template(form)
		_, hasMapping := s.registry.Mapping(form)
		info := FormInfo{
			Form:       form,
			Title:      tpl.Title,
			Template:   tpl.File,
			IDs:        tpl.IDs,
			HasMapping: hasMapping,
		}
		if path, err := s.filler.TemplatePath(form); err == nil {
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				info.TemplatePresent = true
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// FieldInfo describes one field of a template
type FieldInfo struct {
	Name      string   `json:"name"`
	ShortName string   `json:"short_name"`
	Kind      string   `json:"kind"`
	Page      int      `json:"page"`
	Value     string   `json:"value,omitempty"`
	ReadOnly  bool     `json:"read_only,omitempty"`
	States    []string `json:"states,omitempty"`
}

// Fields lists the fields declared by a form's template in page order
func (s *Service) Fields(ctx context.Context, form string) ([]FieldInfo, error) {
	path, err := s.existingTemplate(form)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := acroform.Open(path, acroform.Options{})
	if err != nil {
		return nil, newError(KindFillFailure, form, "failed to open template", err)
	}
	defer doc.Close()

	return DescribeFields(doc), nil
}

// DescribeFields lists the fields of an open document in page order
func DescribeFields(doc *acroform.Document) []FieldInfo {
	fields := doc.Fields()
	infos := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		info := FieldInfo{
			Name:      f.Name(),
			ShortName: f.ShortName(),
			Kind:      f.Kind().String(),
			Page:      f.Page(),
			Value:     f.Value(),
			ReadOnly:  f.ReadOnly(),
		}
		if f.Kind() == acroform.KindCheckbox || f.Kind() == acroform.KindRadio {
			info.States = f.States()
		}
		infos = append(infos, info)
	}
	return infos
}

// existingTemplate resolves a registered form's template and checks it exists
func (s *Service) existingTemplate(form string) (string, error) {
	path, err := s.filler.TemplatePath(form)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", newError(KindTemplateMissing, form, fmt.Sprintf("template not found: %s", path), err)
		}
		return "", newError(KindTemplateMissing, form, "cannot access template", err)
	}
	return path, nil
}

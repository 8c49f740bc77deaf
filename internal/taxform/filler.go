package taxform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/security"
)

// Light grey background of calculated, read-only fields
const (
	greyR = 0.9
	greyG = 0.9
	greyB = 0.9
)

// FillRequest asks for one form to be filled
type FillRequest struct {
	Form    string
	Payload *Payload
	// SkipGreyOut leaves calculated fields editable and uncoloured
	SkipGreyOut bool
}

// Stats are fill diagnostics
type Stats struct {
	Filled           int      `json:"filled"`
	Greyed           int      `json:"greyed"`
	TaxpayerFilled   int      `json:"taxpayer_filled"`
	CheckboxesFilled int      `json:"checkboxes_filled"`
	Unresolved       []string `json:"unresolved,omitempty"`
}

// FillResult is a filled document
type FillResult struct {
	Form  string `json:"form"`
	PDF   []byte `json:"-"`
	Stats Stats  `json:"stats"`
}

// FillerConfig configures a Filler
type FillerConfig struct {
	Registry    *mapping.Registry
	TemplateDir string
	Open        OpenFunc
	// StrictMatch resolves taxpayer and checkbox targets by exact or suffix
	// match only
	StrictMatch bool
	// DisableGreyOut turns grey-out off for every request
	DisableGreyOut bool
	// MaxFileSize rejects larger templates; 0 means no limit
	MaxFileSize int64
	Logger      *slog.Logger
}

// Filler writes payload values into blank templates
type Filler struct {
	registry  *mapping.Registry
	templates *security.Root
	open      OpenFunc
	strict    bool
	greyOut   bool
	maxSize   int64
	logger    *slog.Logger
}

// NewFiller creates a Filler
func NewFiller(cfg FillerConfig) (*Filler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Open == nil {
		return nil, fmt.Errorf("open function is required")
	}
	root, err := security.NewRoot(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("invalid template directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{
		registry:  cfg.Registry,
		templates: root,
		open:      cfg.Open,
		strict:    cfg.StrictMatch,
		greyOut:   !cfg.DisableGreyOut,
		maxSize:   cfg.MaxFileSize,
		logger:    logger,
	}, nil
}

// TemplatePath returns the on-disk template of a registered form
func (f *Filler) TemplatePath(form string) (string, error) {
	info, ok := f.registry.Template(form)
	if !ok {
		return "", newError(KindUnknownForm, form, "form is not registered", nil)
	}
	path, err := f.templates.Resolve(info.File)
	if err != nil {
		return "", newError(KindTemplateMissing, form, "template path rejected", err)
	}
	return path, nil
}

// Fill fills one form. The template on disk is only read.
func (f *Filler) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	form := req.Form
	if req.Payload == nil {
		return nil, newError(KindInvalidPayload, form, "payload is required", nil)
	}
	if _, ok := f.registry.Template(form); !ok {
		return nil, newError(KindUnknownForm, form, "form is not registered", nil)
	}
	m, ok := f.registry.Mapping(form)
	if !ok {
		return nil, newError(KindNoMappingForForm, form, "form has no field mapping table", nil)
	}

	path, err := f.TemplatePath(form)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(KindTemplateMissing, form, fmt.Sprintf("template not found: %s", path), err)
	}
	if f.maxSize > 0 && info.Size() > f.maxSize {
		return nil, newError(KindFillFailure, form,
			fmt.Sprintf("template too large: %d bytes (max: %d bytes)", info.Size(), f.maxSize), nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := f.open(path)
	if err != nil {
		return nil, newError(KindFillFailure, form, "failed to open template", err)
	}
	defer doc.Close()

	run := &fillRun{
		filler:  f,
		form:    form,
		mapping: m,
		payload: req.Payload,
		index:   buildIndex(doc.Widgets()),
		greyOut: f.greyOut && !req.SkipGreyOut,
	}
	if err := run.fillFields(); err != nil {
		return nil, err
	}
	if err := run.fillTaxpayer(); err != nil {
		return nil, err
	}
	if err := run.fillCheckboxes(); err != nil {
		return nil, err
	}

	data, err := doc.Bytes()
	if err != nil {
		return nil, newError(KindFillFailure, form, "failed to serialise document", err)
	}

	stats := run.stats
	sort.Strings(stats.Unresolved)
	f.logger.Debug("form filled",
		"form", form,
		"filled", stats.Filled,
		"greyed", stats.Greyed,
		"taxpayer_filled", stats.TaxpayerFilled,
		"checkboxes_filled", stats.CheckboxesFilled,
		"unresolved", len(stats.Unresolved),
		"bytes", len(data))

	return &FillResult{Form: form, PDF: data, Stats: stats}, nil
}

// fillRun holds the state of one fill
type fillRun struct {
	filler     *Filler
	form       string
	mapping    *mapping.FormMapping
	payload    *Payload
	index      *fieldIndex
	greyOut    bool
	stats      Stats
	unresolved map[string]bool
}

func (r *fillRun) miss(table, key, id string) {
	r.filler.logger.Debug("target not found in template",
		"form", r.form, "table", table, "key", key, "target", id)
	if r.unresolved == nil {
		r.unresolved = make(map[string]bool)
	}
	if !r.unresolved[key] {
		r.unresolved[key] = true
		r.stats.Unresolved = append(r.stats.Unresolved, key)
	}
}

func (r *fillRun) fail(key string, err error) error {
	return newError(KindFillFailure, r.form, fmt.Sprintf("failed to fill %q", key), err)
}

// fillFields writes line items. Targets must match a full or short
// identifier exactly.
func (r *fillRun) fillFields() error {
	for _, key := range r.mapping.Fields.Keys() {
		entry, ok := r.payload.Fields[key]
		if !ok {
			continue
		}
		value := entry.Text()
		if value == "" {
			continue
		}

		target := r.mapping.Fields[key]
		id := target.ID
		if target.IsChoice() {
			if id, ok = target.Option(optionKey(value)); !ok {
				continue
			}
		}

		w, ok := r.index.lookup(id)
		if !ok {
			r.miss("fields", key, id)
			continue
		}

		var err error
		if target.IsChoice() {
			err = w.SetChecked(true)
		} else {
			err = w.SetValue(value)
		}
		if err != nil {
			return r.fail(key, err)
		}
		r.stats.Filled++

		if r.greyOut && !entry.Modifiable() {
			w.SetReadOnly()
			w.SetFillColor(greyR, greyG, greyB)
			r.stats.Greyed++
		}
	}
	return nil
}

// fillTaxpayer writes taxpayer attributes, derived ones included
func (r *fillRun) fillTaxpayer() error {
	for _, key := range r.mapping.Taxpayer.Keys() {
		value := taxpayerValue(r.payload.Taxpayer, key)
		if value == "" {
			continue
		}

		target := r.mapping.Taxpayer[key]
		id := target.ID
		if target.IsChoice() {
			var ok bool
			if id, ok = target.Option(optionKey(value)); !ok {
				continue
			}
		}

		w, _ := r.index.resolve(id, r.filler.strict)
		if w == nil {
			r.miss("taxpayer", key, id)
			continue
		}

		var err error
		if target.IsChoice() {
			err = w.SetChecked(true)
		} else {
			err = w.SetValue(value)
		}
		if err != nil {
			return r.fail(key, err)
		}
		r.stats.TaxpayerFilled++
	}
	return nil
}

// fillCheckboxes switches boolean boxes and the selected option of
// multi-way choices
func (r *fillRun) fillCheckboxes() error {
	for _, key := range r.mapping.Checkboxes.Keys() {
		target := r.mapping.Checkboxes[key]

		if target.IsChoice() {
			source, ok := r.mapping.ChoiceSource(key)
			if !ok {
				source = key
			}
			selected := r.payload.Taxpayer.String(source)
			if selected == "" {
				continue
			}
			id, ok := target.Option(optionKey(selected))
			if !ok {
				continue
			}
			w, _ := r.index.resolve(id, r.filler.strict)
			if w == nil {
				r.miss("checkboxes", key, id)
				continue
			}
			if err := w.SetChecked(true); err != nil {
				return r.fail(key, err)
			}
			r.stats.CheckboxesFilled++
			continue
		}

		value, ok := r.payload.Taxpayer.Lookup(key)
		if !ok {
			if entry, found := r.payload.Fields[key]; found {
				value = entry.Value
			}
		}
		if value == nil {
			continue
		}

		w, _ := r.index.resolve(target.ID, r.filler.strict)
		if w == nil {
			r.miss("checkboxes", key, target.ID)
			continue
		}
		if err := w.SetChecked(truthy(value)); err != nil {
			return r.fail(key, err)
		}
		r.stats.CheckboxesFilled++
	}
	return nil
}

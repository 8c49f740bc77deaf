package taxform

import (
	"context"
	"sort"

	"github.com/a3tai/taxform-filler/internal/mapping"
)

// CoverageEntry is one mapping target checked against a template
type CoverageEntry struct {
	Table  string `json:"table"`
	Key    string `json:"key"`
	Option string `json:"option,omitempty"`
	Target string `json:"target"`
	Match  string `json:"match"`
	Field  string `json:"field,omitempty"`
}

// Coverage reports how well a form's mapping tables fit its template
type Coverage struct {
	Form       string          `json:"form"`
	Template   string          `json:"template"`
	FieldCount int             `json:"field_count"`
	Resolved   int             `json:"resolved"`
	Unresolved int             `json:"unresolved"`
	Entries    []CoverageEntry `json:"entries"`

	// template fields no mapping target reaches, in document order
	UnmappedFields []string `json:"unmapped_fields,omitempty"`
}

// Percent returns the share of resolved targets
func (c *Coverage) Percent() float64 {
	total := c.Resolved + c.Unresolved
	if total == 0 {
		return 0
	}
	return float64(c.Resolved) * 100 / float64(total)
}

// Coverage resolves every target of a form's tables against its template the
// way a fill would. Line items need an exact match; the other tables use the
// configured fallback tiers.
func (s *Service) Coverage(ctx context.Context, form string) (*Coverage, error) {
	m, ok := s.registry.Mapping(form)
	if !ok {
		if _, registered := s.registry.Template(form); !registered {
			return nil, newError(KindUnknownForm, form, "form is not registered", nil)
		}
		return nil, newError(KindNoMappingForForm, form, "form has no field mapping table", nil)
	}

	path, err := s.existingTemplate(form)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := s.cfg.Open(path)
	if err != nil {
		return nil, newError(KindFillFailure, form, "failed to open template", err)
	}
	defer doc.Close()

	ix := buildIndex(doc.Widgets())
	report := &Coverage{Form: form, Template: path, FieldCount: len(ix.names)}

	check := func(table string, t mapping.Table, exactOnly bool) {
		for _, key := range t.Keys() {
			target := t[key]
			if !target.IsChoice() {
				report.add(ix, table, key, "", target.ID, exactOnly, s.cfg.StrictMatch)
				continue
			}
			for _, opt := range sortedOptions(target) {
				report.add(ix, table, key, opt, target.Options[opt], exactOnly, s.cfg.StrictMatch)
			}
		}
	}
	check("fields", m.Fields, true)
	check("taxpayer", m.Taxpayer, false)
	check("checkboxes", m.Checkboxes, false)

	used := make(map[string]bool, len(report.Entries))
	for _, e := range report.Entries {
		used[e.Field] = true
	}
	for _, name := range ix.names {
		if !used[name] {
			report.UnmappedFields = append(report.UnmappedFields, name)
		}
	}

	return report, nil
}

func (c *Coverage) add(ix *fieldIndex, table, key, option, id string, exactOnly, strict bool) {
	entry := CoverageEntry{Table: table, Key: key, Option: option, Target: id, Match: MatchNone.String()}

	var w Widget
	tier := MatchNone
	if exactOnly {
		if found, ok := ix.lookup(id); ok {
			w, tier = found, MatchExact
		}
	} else {
		w, tier = ix.resolve(id, strict)
	}

	if w != nil {
		entry.Match = tier.String()
		entry.Field = w.Name()
		c.Resolved++
	} else {
		c.Unresolved++
	}
	c.Entries = append(c.Entries, entry)
}

func sortedOptions(t mapping.Target) []string {
	opts := make([]string, 0, len(t.Options))
	for opt := range t.Options {
		opts = append(opts, opt)
	}
	sort.Strings(opts)
	return opts
}

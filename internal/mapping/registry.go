// Package mapping holds the per-form tables that map semantic tax-return keys
// to PDF field identifiers. Tables are loaded once and never modified.
package mapping

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// TemplatesFile lists every registered form and its blank template
const TemplatesFile = "templates.yaml"

//go:embed tables/*.yaml
var embedded embed.FS

// TemplateInfo describes a registered form template
type TemplateInfo struct {
	Form  string  `yaml:"-"`
	Title string  `yaml:"title"`
	File  string  `yaml:"template"`
	IDs   []int64 `yaml:"ids"`
}

// FormMapping holds the tables for one form
type FormMapping struct {
	Form       string `yaml:"form"`
	Fields     Table  `yaml:"fields"`
	Taxpayer   Table  `yaml:"taxpayer"`
	Checkboxes Table  `yaml:"checkboxes"`
	// ChoiceSources names the taxpayer attribute a multi-way checkbox reads
	// its option from, e.g. filing_status -> status_display.
	ChoiceSources map[string]string `yaml:"choice_sources"`
}

// ChoiceSource returns the taxpayer attribute configured for a choice key
func (m *FormMapping) ChoiceSource(key string) (string, bool) {
	src, ok := m.ChoiceSources[key]
	return src, ok && src != ""
}

// Registry is the read-only set of templates and mapping tables
type Registry struct {
	templates map[string]TemplateInfo
	mappings  map[string]*FormMapping
	byID      map[int64]string
}

type templatesDoc struct {
	Forms map[string]TemplateInfo `yaml:"forms"`
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	sub, err := fs.Sub(embedded, "tables")
	if err != nil {
		return nil, err
	}
	return Load(sub)
})

// Default returns the registry compiled into the binary
func Default() (*Registry, error) {
	return defaultRegistry()
}

// LoadDir loads a registry from a directory laid out like the embedded one
func LoadDir(dir string) (*Registry, error) {
	return Load(os.DirFS(dir))
}

// Load reads templates.yaml and every other *.yaml file in fsys as a form mapping
func Load(fsys fs.FS) (*Registry, error) {
	data, err := fs.ReadFile(fsys, TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TemplatesFile, err)
	}

	var doc templatesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", TemplatesFile, err)
	}

	r := &Registry{
		templates: make(map[string]TemplateInfo, len(doc.Forms)),
		mappings:  make(map[string]*FormMapping),
		byID:      make(map[int64]string),
	}

	for form, info := range doc.Forms {
		if info.File == "" {
			return nil, fmt.Errorf("form %s: template file name is required", form)
		}
		if path.Base(info.File) != info.File {
			return nil, fmt.Errorf("form %s: template %q must be a bare file name", form, info.File)
		}
		info.Form = form
		for _, id := range info.IDs {
			if other, dup := r.byID[id]; dup {
				return nil, fmt.Errorf("form id %d is assigned to both %s and %s", id, other, form)
			}
			r.byID[id] = form
		}
		r.templates[form] = info
	}

	matches, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	for _, name := range matches {
		if name == TemplatesFile {
			continue
		}
		m, err := loadMapping(fsys, name)
		if err != nil {
			return nil, err
		}
		if _, ok := r.templates[m.Form]; !ok {
			return nil, fmt.Errorf("%s: form %s has no registered template", name, m.Form)
		}
		if _, dup := r.mappings[m.Form]; dup {
			return nil, fmt.Errorf("%s: duplicate mapping for form %s", name, m.Form)
		}
		r.mappings[m.Form] = m
	}

	return r, nil
}

func loadMapping(fsys fs.FS, name string) (*FormMapping, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var m FormMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if m.Form == "" {
		m.Form = strings.TrimSuffix(name, path.Ext(name))
	}
	return &m, nil
}

// Template returns the template registered for form
func (r *Registry) Template(form string) (TemplateInfo, bool) {
	info, ok := r.templates[form]
	return info, ok
}

// Mapping returns the tables for form. It reports false when the form has no
// field-mapping table, even if other tables exist.
func (r *Registry) Mapping(form string) (*FormMapping, bool) {
	m, ok := r.mappings[form]
	if !ok || m.Fields == nil {
		return nil, false
	}
	return m, true
}

// FormForID returns the form routed to a stored form-record id
func (r *Registry) FormForID(id int64) (string, bool) {
	form, ok := r.byID[id]
	return form, ok
}

// FormForName resolves a display name such as "FORM 1040" or "Schedule C"
func (r *Registry) FormForName(name string) (string, bool) {
	form := NormalizeName(name)
	_, ok := r.templates[form]
	return form, ok
}

// Forms returns every registered form name in sorted order
func (r *Registry) Forms() []string {
	return sortedKeys(r.templates)
}

// NormalizeName lower-cases a display name and joins its words with underscores
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

package taxform

import (
	"github.com/a3tai/taxform-filler/internal/acroform"
)

// Widget is a named fillable field of a loaded document
type Widget interface {
	Name() string
	SetValue(v string) error
	SetChecked(on bool) error
	SetReadOnly()
	SetFillColor(r, g, b float64)
}

// Document is a loaded template. Callers must Close it.
type Document interface {
	Widgets() []Widget
	Bytes() ([]byte, error)
	Close() error
}

// OpenFunc loads the template at path into memory
type OpenFunc func(path string) (Document, error)

// OpenAcroForm returns an OpenFunc backed by the acroform package
func OpenAcroForm(opts acroform.Options) OpenFunc {
	return func(path string) (Document, error) {
		doc, err := acroform.Open(path, opts)
		if err != nil {
			return nil, err
		}
		return &acroformDocument{doc: doc}, nil
	}
}

type acroformDocument struct {
	doc *acroform.Document
}

func (d *acroformDocument) Widgets() []Widget {
	fields := d.doc.Fields()
	widgets := make([]Widget, len(fields))
	for i, f := range fields {
		widgets[i] = f
	}
	return widgets
}

func (d *acroformDocument) Bytes() ([]byte, error) {
	return d.doc.Bytes()
}

func (d *acroformDocument) Close() error {
	return d.doc.Close()
}

// Package acroform loads fillable PDF templates with pdfcpu, exposes their
// widgets as named fields and serialises the mutated document back to bytes.
package acroform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxTreeDepth bounds page tree and field parent walks in malformed files.
const maxTreeDepth = 64

// ErrDocumentClosed is returned by operations on a closed document.
var ErrDocumentClosed = errors.New("document is closed")

func init() {
	// pdfcpu would otherwise create a config directory under the user's home.
	api.DisableConfigDir()
}

// Options controls how a document is loaded and serialised
type Options struct {
	// KeepXFA leaves the XFA packet in place when a modified document is
	// written. By default it is removed so viewers render the AcroForm values.
	KeepXFA bool
}

// Document is an in-memory fillable PDF
type Document struct {
	ctx      *model.Context
	fields   []*Field
	opts     Options
	modified bool
	closed   bool
}

// Open reads the PDF at path into memory. The file itself is never written.
func Open(path string, opts Options) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return Read(bytes.NewReader(data), opts)
}

// Read parses a PDF from rs and indexes its widgets page by page
func Read(rs io.ReadSeeker, opts Options) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	d := &Document{ctx: ctx, opts: opts}
	if err := d.collectFields(); err != nil {
		return nil, err
	}
	return d, nil
}

// Fields returns the document's named fields in page order
func (d *Document) Fields() []*Field {
	if d.closed {
		return nil
	}
	return d.fields
}

// Field returns the field with the given fully qualified name
func (d *Document) Field(name string) (*Field, bool) {
	for _, f := range d.Fields() {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	if d.closed {
		return 0
	}
	return d.ctx.PageCount
}

// Bytes serialises the document, including all field changes, to a new buffer
func (d *Document) Bytes() ([]byte, error) {
	if d.closed {
		return nil, ErrDocumentClosed
	}

	if d.modified {
		if err := d.prepareAcroForm(); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the parsed document. It is safe to call more than once.
func (d *Document) Close() error {
	d.closed = true
	d.ctx = nil
	d.fields = nil
	return nil
}

// HasXFA reports whether the AcroForm dictionary carries an XFA packet
func (d *Document) HasXFA() bool {
	if d.closed {
		return false
	}
	acroForm, err := d.acroForm()
	if err != nil || acroForm == nil {
		return false
	}
	_, found := acroForm.Find("XFA")
	return found
}

func (d *Document) acroForm() (types.Dict, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	obj, found := root.Find("AcroForm")
	if !found {
		return nil, nil
	}

	acroForm, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	return acroForm, nil
}

// prepareAcroForm asks viewers to regenerate appearances for changed values
func (d *Document) prepareAcroForm() error {
	acroForm, err := d.acroForm()
	if err != nil {
		return err
	}
	if acroForm == nil {
		return nil
	}

	acroForm["NeedAppearances"] = types.Boolean(true)
	if !d.opts.KeepXFA {
		delete(acroForm, "XFA")
	}
	return nil
}

// collectFields walks the page tree and groups widget annotations by the
// terminal field they belong to
func (d *Document) collectFields() error {
	root, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}

	pagesObj, found := root.Find("Pages")
	if !found {
		return nil
	}

	byObject := make(map[int]*Field)
	pageNum := 0
	visited := make(map[int]bool)

	var walk func(obj types.Object, depth int) error
	walk = func(obj types.Object, depth int) error {
		if depth > maxTreeDepth {
			return fmt.Errorf("page tree deeper than %d levels", maxTreeDepth)
		}
		if ref, ok := obj.(types.IndirectRef); ok {
			if visited[ref.ObjectNumber.Value()] {
				return nil
			}
			visited[ref.ObjectNumber.Value()] = true
		}

		node, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return fmt.Errorf("failed to dereference page tree node: %w", err)
		}
		if node == nil {
			return nil
		}

		if kidsObj, found := node.Find("Kids"); found {
			kids, err := d.ctx.DereferenceArray(kidsObj)
			if err != nil {
				return fmt.Errorf("failed to dereference page kids: %w", err)
			}
			for _, kid := range kids {
				if err := walk(kid, depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		pageNum++
		d.collectPageWidgets(node, pageNum, byObject)
		return nil
	}

	return walk(pagesObj, 0)
}

func (d *Document) collectPageWidgets(page types.Dict, pageNum int, byObject map[int]*Field) {
	annotsObj, found := page.Find("Annots")
	if !found {
		return
	}
	annots, err := d.ctx.DereferenceArray(annotsObj)
	if err != nil {
		return
	}

	for i, annotObj := range annots {
		widget, err := d.ctx.DereferenceDict(annotObj)
		if err != nil || widget == nil {
			continue
		}
		if subtype, found := widget.Find("Subtype"); found {
			if name, err := d.ctx.DereferenceName(subtype, model.V10, nil); err != nil || name != "Widget" {
				continue
			}
		}

		fieldDict, key := widget, objectKey(annotObj, pageNum, i)
		if _, hasName := widget.Find("T"); !hasName {
			parentObj, found := widget.Find("Parent")
			if !found {
				continue
			}
			parent, err := d.ctx.DereferenceDict(parentObj)
			if err != nil || parent == nil {
				continue
			}
			fieldDict, key = parent, objectKey(parentObj, pageNum, i)
		}

		if f, seen := byObject[key]; seen {
			f.widgets = append(f.widgets, widget)
			continue
		}

		name := d.qualifiedName(fieldDict)
		if name == "" {
			continue
		}

		f := &Field{
			doc:     d,
			name:    name,
			dict:    fieldDict,
			widgets: []types.Dict{widget},
			page:    pageNum,
		}
		f.kind = d.fieldKind(fieldDict)
		byObject[key] = f
		d.fields = append(d.fields, f)
	}
}

// qualifiedName joins the partial names (T) from the root field down to dict
func (d *Document) qualifiedName(dict types.Dict) string {
	var parts []string
	for depth := 0; dict != nil && depth < maxTreeDepth; depth++ {
		if t, found := dict.Find("T"); found {
			if s, err := d.ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && s != "" {
				parts = append(parts, s)
			}
		}
		parentObj, found := dict.Find("Parent")
		if !found {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil {
			break
		}
		dict = parent
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	return strings.Join(parts, ".")
}

// inherited looks key up on dict and then on its ancestors
func (d *Document) inherited(dict types.Dict, key string) (types.Object, bool) {
	for depth := 0; dict != nil && depth < maxTreeDepth; depth++ {
		if obj, found := dict.Find(key); found {
			return obj, true
		}
		parentObj, found := dict.Find("Parent")
		if !found {
			return nil, false
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil {
			return nil, false
		}
		dict = parent
	}
	return nil, false
}

func (d *Document) fieldKind(dict types.Dict) Kind {
	ftObj, found := d.inherited(dict, "FT")
	if !found {
		return KindUnknown
	}
	ft, err := d.ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return KindUnknown
	}

	switch ft {
	case "Btn":
		flags := d.flags(dict)
		if flags&flagRadio != 0 {
			return KindRadio
		}
		if flags&flagPushButton != 0 {
			return KindButton
		}
		return KindCheckbox
	case "Tx":
		return KindText
	case "Ch":
		return KindChoice
	case "Sig":
		return KindSignature
	default:
		return KindUnknown
	}
}

func (d *Document) flags(dict types.Dict) int {
	obj, found := d.inherited(dict, "Ff")
	if !found {
		return 0
	}
	flags, err := d.ctx.DereferenceInteger(obj)
	if err != nil || flags == nil {
		return 0
	}
	return flags.Value()
}

// objectKey identifies a field dictionary. Direct (non-referenced)
// dictionaries get a synthetic negative key unique per page slot.
func objectKey(obj types.Object, pageNum, index int) int {
	if ref, ok := obj.(types.IndirectRef); ok {
		return ref.ObjectNumber.Value()
	}
	return -(pageNum*100000 + index + 1)
}

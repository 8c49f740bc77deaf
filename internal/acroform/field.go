package acroform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4.2.1)
const (
	flagReadOnly   = 1
	flagRadio      = 1 << 15
	flagPushButton = 1 << 16
)

const (
	// StateOff is the appearance state of an unchecked button
	StateOff = "Off"
	// StateYes is the on state used when a widget declares none
	StateYes = "Yes"
)

// Kind represents the type of a form field
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindCheckbox
	KindRadio
	KindButton
	KindChoice
	KindSignature
)

// String returns a string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCheckbox:
		return "checkbox"
	case KindRadio:
		return "radio"
	case KindButton:
		return "button"
	case KindChoice:
		return "choice"
	case KindSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// Field is a terminal form field together with its widget annotations
type Field struct {
	doc     *Document
	name    string
	dict    types.Dict
	widgets []types.Dict
	kind    Kind
	page    int
}

// Name returns the fully qualified field name, e.g. "topmostSubform[0].Page1[0].f1_14[0]"
func (f *Field) Name() string {
	return f.name
}

// ShortName returns the last segment of the qualified name
func (f *Field) ShortName() string {
	if i := strings.LastIndex(f.name, "."); i >= 0 {
		return f.name[i+1:]
	}
	return f.name
}

// Kind returns the field type
func (f *Field) Kind() Kind {
	return f.kind
}

// Page returns the 1-based page of the field's first widget
func (f *Field) Page() int {
	return f.page
}

// Value returns the current value as text. Button states are returned by name.
func (f *Field) Value() string {
	if f.doc.closed {
		return ""
	}
	obj, found := f.doc.inherited(f.dict, "V")
	if !found {
		return ""
	}
	obj, err := f.doc.ctx.Dereference(obj)
	if err != nil || obj == nil {
		return ""
	}
	if name, ok := obj.(types.Name); ok {
		return string(name)
	}
	s, err := f.doc.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

// SetValue writes v as the field value. For buttons, "" and "Off" uncheck,
// a declared appearance state selects that state and anything else checks
// the field.
func (f *Field) SetValue(v string) error {
	if f.doc.closed {
		return ErrDocumentClosed
	}

	switch f.kind {
	case KindCheckbox, KindRadio:
		if v == "" || v == StateOff {
			return f.setState(StateOff)
		}
		for _, s := range f.States() {
			if s == v {
				return f.setState(v)
			}
		}
		return f.setState(f.OnState())
	case KindButton, KindSignature:
		return fmt.Errorf("field %s of type %s cannot hold a value", f.name, f.kind)
	}

	f.dict["V"] = encodeText(v)
	f.doc.modified = true
	return nil
}

// SetChecked switches a button field on or off
func (f *Field) SetChecked(on bool) error {
	if f.doc.closed {
		return ErrDocumentClosed
	}
	if f.kind != KindCheckbox && f.kind != KindRadio {
		state := StateOff
		if on {
			state = StateYes
		}
		return f.SetValue(state)
	}
	if on {
		return f.setState(f.OnState())
	}
	return f.setState(StateOff)
}

func (f *Field) setState(state string) error {
	f.dict["V"] = types.Name(state)
	for _, w := range f.widgets {
		as := StateOff
		if state != StateOff && f.widgetHasState(w, state) {
			as = state
		}
		w["AS"] = types.Name(as)
	}
	f.doc.modified = true
	return nil
}

// States returns the on-state appearance names declared by the widgets
func (f *Field) States() []string {
	seen := make(map[string]bool)
	var states []string
	for _, w := range f.widgets {
		for _, s := range f.widgetStates(w) {
			if !seen[s] {
				seen[s] = true
				states = append(states, s)
			}
		}
	}
	return states
}

// OnState returns the name that checks the field, e.g. "1" on IRS forms
func (f *Field) OnState() string {
	if states := f.States(); len(states) > 0 {
		return states[0]
	}
	return StateYes
}

func (f *Field) widgetHasState(w types.Dict, state string) bool {
	for _, s := range f.widgetStates(w) {
		if s == state {
			return true
		}
	}
	return false
}

func (f *Field) widgetStates(w types.Dict) []string {
	apObj, found := w.Find("AP")
	if !found {
		return nil
	}
	ap, err := f.doc.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil
	}
	n, err := f.doc.ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return nil
	}

	var states []string
	for k := range n {
		if k != StateOff {
			states = append(states, k)
		}
	}
	sort.Strings(states)
	return states
}

// Flags returns the field flags (Ff), including inherited ones
func (f *Field) Flags() int {
	if f.doc.closed {
		return 0
	}
	return f.doc.flags(f.dict)
}

// ReadOnly reports whether the read-only flag is set
func (f *Field) ReadOnly() bool {
	return f.Flags()&flagReadOnly != 0
}

// SetReadOnly sets the read-only flag on the field
func (f *Field) SetReadOnly() {
	if f.doc.closed {
		return
	}
	f.dict["Ff"] = types.Integer(f.Flags() | flagReadOnly)
	f.doc.modified = true
}

// SetFillColor sets the background colour (MK/BG) of every widget.
// Components are in the 0..1 range.
func (f *Field) SetFillColor(r, g, b float64) {
	if f.doc.closed {
		return
	}
	bg := types.Array{types.Float(r), types.Float(g), types.Float(b)}
	for _, w := range f.widgets {
		mk := f.characteristics(w)
		mk["BG"] = bg
	}
	f.doc.modified = true
}

// FillColor returns the background colour of the first widget
func (f *Field) FillColor() ([]float64, bool) {
	if f.doc.closed || len(f.widgets) == 0 {
		return nil, false
	}
	mkObj, found := f.widgets[0].Find("MK")
	if !found {
		return nil, false
	}
	mk, err := f.doc.ctx.DereferenceDict(mkObj)
	if err != nil || mk == nil {
		return nil, false
	}
	bgObj, found := mk.Find("BG")
	if !found {
		return nil, false
	}
	bg, err := f.doc.ctx.DereferenceArray(bgObj)
	if err != nil {
		return nil, false
	}

	color := make([]float64, 0, len(bg))
	for _, c := range bg {
		v, err := f.doc.ctx.DereferenceNumber(c)
		if err != nil {
			return nil, false
		}
		color = append(color, v)
	}
	return color, true
}

// characteristics returns the widget's MK dictionary, creating it if needed
func (f *Field) characteristics(w types.Dict) types.Dict {
	if mkObj, found := w.Find("MK"); found {
		if mk, err := f.doc.ctx.DereferenceDict(mkObj); err == nil && mk != nil {
			return mk
		}
	}
	mk := types.Dict{}
	w["MK"] = mk
	return mk
}

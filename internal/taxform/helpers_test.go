package taxform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/a3tai/taxform-filler/internal/acroform"
	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/testutil"
)

const (
	page1 = "topmostSubform[0].Page1[0]."
	page2 = "topmostSubform[0].Page2[0]."
)

// form1040Spec carries the form_1040 fields the embedded tables point at
func form1040Spec() testutil.FormSpec {
	fields := []testutil.FieldSpec{
		{Name: page1 + "f1_14[0]"},
		{Name: page1 + "f1_15[0]"},
		{Name: page1 + "f1_16[0]"},
		{Name: page1 + "Address_ReadOrder[0].f1_20[0]"},
		{Name: page1 + "Address_ReadOrder[0].f1_22[0]"},
		{Name: page1 + "f1_47[0]"},
		{Name: page1 + "f1_57[0]"},
		{Name: page1 + "f1_75[0]"},
		{Name: page1 + "c1_1[0]", Kind: testutil.Checkbox, States: []string{"1"}},
		{Name: page1 + "c1_5[0]", Kind: testutil.Checkbox, States: []string{"1"}},
	}
	for i, state := range []string{"1", "2", "3", "4", "5"} {
		fields = append(fields, testutil.FieldSpec{
			Name:   page1 + "c1_3[" + string(rune('0'+i)) + "]",
			Kind:   testutil.Checkbox,
			States: []string{state},
		})
	}
	fields = append(fields, testutil.FieldSpec{Name: page2 + "f2_01[0]", Page: 2})
	return testutil.FormSpec{Fields: fields, XFA: true}
}

func scheduleSpec() testutil.FormSpec {
	return testutil.FormSpec{Fields: []testutil.FieldSpec{
		{Name: page1 + "f1_1[0]"},
		{Name: page1 + "f1_2[0]"},
		{Name: page1 + "f1_3[0]"},
		{Name: page1 + "f1_4[0]"},
		{Name: page1 + "c1_2[0]", Kind: testutil.Checkbox, States: []string{"1"}},
	}}
}

// templateDir writes the form_1040 and schedule_a fixtures under their
// registered file names
func templateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteForm(t, dir, "f1040.pdf", form1040Spec())
	testutil.WriteForm(t, dir, "f1040sa.pdf", scheduleSpec())
	return dir
}

func defaultRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	reg, err := mapping.Default()
	require.NoError(t, err)
	return reg
}

func testRegistry(t *testing.T, files map[string]string) *mapping.Registry {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	reg, err := mapping.Load(fsys)
	require.NoError(t, err)
	return reg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, dir string, cfg Config) *Service {
	t.Helper()
	cfg.TemplateDir = dir
	svc, err := NewService(cfg, defaultRegistry(t), discardLogger())
	require.NoError(t, err)
	return svc
}

func mustPayload(t *testing.T, body string) *Payload {
	t.Helper()
	p, err := ParsePayload([]byte(body))
	require.NoError(t, err)
	return p
}

// readBack parses filled output and returns its fields by full name
func readBack(t *testing.T, data []byte) map[string]*acroform.Field {
	t.Helper()
	doc, err := acroform.Read(bytes.NewReader(data), acroform.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })

	fields := make(map[string]*acroform.Field)
	for _, f := range doc.Fields() {
		fields[f.Name()] = f
	}
	return fields
}

// fakeWidget records what a fill did to it
type fakeWidget struct {
	name     string
	value    string
	checked  *bool
	readOnly bool
	color    []float64
	err      error
}

func (w *fakeWidget) Name() string { return w.name }

func (w *fakeWidget) SetValue(v string) error {
	if w.err != nil {
		return w.err
	}
	w.value = v
	return nil
}

func (w *fakeWidget) SetChecked(on bool) error {
	if w.err != nil {
		return w.err
	}
	w.checked = &on
	return nil
}

func (w *fakeWidget) SetReadOnly() { w.readOnly = true }

func (w *fakeWidget) SetFillColor(r, g, b float64) { w.color = []float64{r, g, b} }

type fakeDocument struct {
	widgets  []Widget
	bytesErr error
	closed   bool
}

func (d *fakeDocument) Widgets() []Widget { return d.widgets }

func (d *fakeDocument) Bytes() ([]byte, error) {
	if d.bytesErr != nil {
		return nil, d.bytesErr
	}
	return []byte("%PDF-fake"), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

// countingOpen returns an OpenFunc serving doc and a pointer to its call count
func countingOpen(doc *fakeDocument) (OpenFunc, *int) {
	calls := 0
	return func(string) (Document, error) {
		calls++
		if doc == nil {
			return nil, errors.New("no document")
		}
		return doc, nil
	}, &calls
}

var background = context.Background()

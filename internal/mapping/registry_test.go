package mapping

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, reg, again, "default registry is loaded once")

	assert.Equal(t, []string{
		"form_1040", "schedule_a", "schedule_b", "schedule_c", "schedule_d", "schedule_e",
	}, reg.Forms())

	info, ok := reg.Template("form_1040")
	require.True(t, ok)
	assert.Equal(t, "f1040.pdf", info.File)
	assert.Equal(t, "form_1040", info.Form)

	m, ok := reg.Mapping("form_1040")
	require.True(t, ok)
	assert.Equal(t, "topmostSubform[0].Page1[0].f1_47[0]", m.Fields["1a"].ID)
	assert.Equal(t, "topmostSubform[0].Page1[0].f1_14[0]", m.Taxpayer["first_name"].ID)

	status := m.Checkboxes["filing_status"]
	require.True(t, status.IsChoice())
	id, ok := status.Option("head_of_household")
	assert.True(t, ok)
	assert.Equal(t, "topmostSubform[0].Page1[0].c1_3[3]", id)

	src, ok := m.ChoiceSource("filing_status")
	assert.True(t, ok)
	assert.Equal(t, "status_display", src)

	b, ok := reg.Mapping("schedule_b")
	require.True(t, ok)
	assert.Equal(t, "f1_01[0]", b.Taxpayer["full_name"].ID)
}

func TestDefault_TemplateWithoutMapping(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	_, ok := reg.Template("schedule_e")
	assert.True(t, ok)
	_, ok = reg.Mapping("schedule_e")
	assert.False(t, ok)
}

func TestRegistry_FormLookups(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	form, ok := reg.FormForID(16026)
	assert.True(t, ok)
	assert.Equal(t, "form_1040", form)

	_, ok = reg.FormForID(1)
	assert.False(t, ok)

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"FORM 1040", "form_1040", true},
		{"Schedule  C", "schedule_c", true},
		{" schedule_d ", "schedule_d", true},
		{"Form 8949", "form_8949", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reg.FormForName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
	}{
		{
			name:    "missing templates file",
			files:   fstest.MapFS{},
			wantErr: "templates.yaml",
		},
		{
			name: "template without file",
			files: fstest.MapFS{
				"templates.yaml": {Data: []byte("forms:\n  a:\n    title: A\n")},
			},
			wantErr: "template file name is required",
		},
		{
			name: "template with directory",
			files: fstest.MapFS{
				"templates.yaml": {Data: []byte("forms:\n  a:\n    template: ../a.pdf\n")},
			},
			wantErr: "bare file name",
		},
		{
			name: "duplicate id",
			files: fstest.MapFS{
				"templates.yaml": {Data: []byte("forms:\n  a:\n    template: a.pdf\n    ids: [1]\n  b:\n    template: b.pdf\n    ids: [1]\n")},
			},
			wantErr: "form id 1",
		},
		{
			name: "mapping for unregistered form",
			files: fstest.MapFS{
				"templates.yaml": {Data: []byte("forms:\n  a:\n    template: a.pdf\n")},
				"b.yaml":         {Data: []byte("fields:\n  \"1\": f1_1[0]\n")},
			},
			wantErr: "form b has no registered template",
		},
		{
			name: "empty target",
			files: fstest.MapFS{
				"templates.yaml": {Data: []byte("forms:\n  a:\n    template: a.pdf\n")},
				"a.yaml":         {Data: []byte("fields:\n  \"1\": \"\"\n")},
			},
			wantErr: "empty field identifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FormNameFromFileName(t *testing.T) {
	reg, err := Load(fstest.MapFS{
		"templates.yaml": {Data: []byte("forms:\n  w2:\n    template: w2.pdf\n")},
		"w2.yaml":        {Data: []byte("fields:\n  \"1\": f1_1[0]\n")},
	})
	require.NoError(t, err)

	m, ok := reg.Mapping("w2")
	require.True(t, ok)
	assert.Equal(t, "w2", m.Form)
	assert.Equal(t, []string{"1"}, m.Fields.Keys())
}

func TestTarget_UnmarshalYAML(t *testing.T) {
	var table Table
	err := yaml.Unmarshal([]byte(`
single: f1_1[0]
choice:
  b: c1_1[1]
  a: c1_1[0]
`), &table)
	require.NoError(t, err)

	assert.False(t, table["single"].IsChoice())
	assert.Equal(t, []string{"f1_1[0]"}, table["single"].Identifiers())

	assert.True(t, table["choice"].IsChoice())
	assert.Equal(t, []string{"c1_1[0]", "c1_1[1]"}, table["choice"].Identifiers())
	assert.Equal(t, []string{"choice", "single"}, table.Keys())

	err = yaml.Unmarshal([]byte("bad: [a, b]\n"), &table)
	assert.Error(t, err)
}

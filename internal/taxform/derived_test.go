package taxform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxpayerValue(t *testing.T) {
	tp := Taxpayer{
		"first_name":        " John ",
		"last_name":         "Doe",
		"spouse_first_name": "Jane",
		"address":           "1 Main St",
		"city":              "Springfield",
		"state":             "IL",
		"zip":               json.Number("62701"),
		"ssn":               "123-45-6789",
	}

	tests := []struct {
		key  string
		want string
	}{
		{"full_name", "John Doe"},
		{"spouse_full_name", "Jane"},
		{"property_address", "1 Main St, Springfield, IL, 62701"},
		{"city_state_zip", "Springfield, IL 62701"},
		{"employer_name", "John Doe"},
		{"ssn", "123-45-6789"},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, taxpayerValue(tp, tt.key))
		})
	}

	tp["employer_name"] = "Acme LLC"
	assert.Equal(t, "Acme LLC", taxpayerValue(tp, "employer_name"))
	assert.Equal(t, "", taxpayerValue(Taxpayer{}, "property_address"))
	assert.True(t, IsDerivedKey("full_name"))
	assert.False(t, IsDerivedKey("ssn"))
}

func TestOptionKey(t *testing.T) {
	assert.Equal(t, "head_of_household", optionKey("Head of Household"))
	assert.Equal(t, "head_of_household", optionKey("  Head  of\tHousehold "))
	assert.Equal(t, "married_filing_jointly", optionKey("  MARRIED  Filing Jointly "))
	assert.Equal(t, "single", optionKey("single"))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"75000", "75000"},
		{json.Number("1234.50"), "1234.50"},
		{float64(75000), "75000"},
		{1234.5, "1234.5"},
		{42, "42"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stringify(tt.in), "%#v", tt.in)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"true", true},
		{"false", false},
		{"0", false},
		{"1", true},
		{"Yes", true},
		{"no", false},
		{"", false},
		{"X", true},
		{"anything", true},
		{json.Number("0"), false},
		{json.Number("2"), true},
		{0, false},
		{3, true},
		{0.0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.in), "%#v", tt.in)
	}
}

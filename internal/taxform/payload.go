package taxform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Taxpayer holds the taxpayer attributes of a payload (first_name, ssn,
// status_display, ...). Values keep their JSON types.
type Taxpayer map[string]any

// Lookup returns the raw attribute and whether it is present and non-nil
func (t Taxpayer) Lookup(key string) (any, bool) {
	v, ok := t[key]
	return v, ok && v != nil
}

// String returns the attribute as a string, or "" when absent
func (t Taxpayer) String(key string) string {
	v, ok := t.Lookup(key)
	if !ok {
		return ""
	}
	return stringify(v)
}

// FieldEntry is one line item of a payload
type FieldEntry struct {
	Value         any    `mapstructure:"value" json:"value"`
	Label         string `mapstructure:"label" json:"label,omitempty"`
	FType         string `mapstructure:"ftype" json:"ftype,omitempty"`
	CanBeModified *bool  `mapstructure:"can_be_modified" json:"can_be_modified,omitempty"`
}

// Modifiable reports whether the value may be edited by the user. Entries
// without the flag are modifiable.
func (e FieldEntry) Modifiable() bool {
	return e.CanBeModified == nil || *e.CanBeModified
}

// Text returns the value as a string; empty for null or empty values
func (e FieldEntry) Text() string {
	if e.Value == nil {
		return ""
	}
	return stringify(e.Value)
}

// Payload is the canonical fill input
type Payload struct {
	Taxpayer Taxpayer              `json:"taxpayer"`
	Fields   map[string]FieldEntry `json:"fields"`
}

// ParsePayload decodes a JSON payload. Numbers are kept as json.Number so
// amounts are written exactly as sent.
func ParsePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, newError(KindInvalidPayload, "", "payload is not valid JSON", err)
	}
	return PayloadFromMap(raw)
}

// PayloadFromMap normalises an already decoded payload
func PayloadFromMap(raw any) (*Payload, error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, newError(KindInvalidPayload, "", fmt.Sprintf("payload must be an object, got %T", raw), nil)
	}

	taxpayerRaw, ok := root["taxpayer"]
	if !ok {
		return nil, newError(KindInvalidPayload, "", "payload missing 'taxpayer' key", nil)
	}
	fieldsRaw, ok := root["fields"]
	if !ok {
		return nil, newError(KindInvalidPayload, "", "payload missing 'fields' key", nil)
	}

	p := &Payload{
		Taxpayer: Taxpayer{},
		Fields:   map[string]FieldEntry{},
	}

	if taxpayerRaw != nil {
		tp, ok := taxpayerRaw.(map[string]any)
		if !ok {
			return nil, newError(KindInvalidPayload, "", fmt.Sprintf("'taxpayer' must be an object, got %T", taxpayerRaw), nil)
		}
		p.Taxpayer = Taxpayer(tp)
	}

	if fieldsRaw != nil {
		fields, ok := fieldsRaw.(map[string]any)
		if !ok {
			return nil, newError(KindInvalidPayload, "", fmt.Sprintf("'fields' must be an object, got %T", fieldsRaw), nil)
		}
		for key, v := range fields {
			entry, err := decodeFieldEntry(v)
			if err != nil {
				return nil, newError(KindInvalidPayload, "", fmt.Sprintf("field %q", key), err)
			}
			p.Fields[key] = entry
		}
	}

	return p, nil
}

func decodeFieldEntry(v any) (FieldEntry, error) {
	var entry FieldEntry
	if v == nil {
		return entry, nil
	}
	if _, ok := v.(map[string]any); !ok {
		return entry, fmt.Errorf("entry must be an object, got %T", v)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &entry,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return entry, err
	}
	if err := dec.Decode(v); err != nil {
		return entry, err
	}
	return entry, nil
}

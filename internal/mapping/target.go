package mapping

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Target is where a semantic key lands in a template: either one field
// identifier or, for multi-way choices such as filing status, a map from
// option value to field identifier.
type Target struct {
	ID      string
	Options map[string]string
}

// IsChoice reports whether the target is an option map
func (t Target) IsChoice() bool {
	return t.Options != nil
}

// Option returns the field identifier for an option value
func (t Target) Option(value string) (string, bool) {
	id, ok := t.Options[value]
	return id, ok
}

// Identifiers returns every field identifier the target refers to
func (t Target) Identifiers() []string {
	if !t.IsChoice() {
		return []string{t.ID}
	}
	ids := make([]string, 0, len(t.Options))
	for _, opt := range sortedKeys(t.Options) {
		ids = append(ids, t.Options[opt])
	}
	return ids
}

// UnmarshalYAML accepts either a scalar identifier or an option mapping
func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if err := value.Decode(&t.ID); err != nil {
			return err
		}
		if t.ID == "" {
			return fmt.Errorf("line %d: empty field identifier", value.Line)
		}
		return nil
	case yaml.MappingNode:
		opts := make(map[string]string)
		if err := value.Decode(&opts); err != nil {
			return err
		}
		if len(opts) == 0 {
			return fmt.Errorf("line %d: empty option map", value.Line)
		}
		t.Options = opts
		return nil
	default:
		return fmt.Errorf("line %d: target must be a field identifier or an option map", value.Line)
	}
}

// Table maps semantic keys to targets
type Table map[string]Target

// Keys returns the table's semantic keys in sorted order
func (t Table) Keys() []string {
	return sortedKeys(t)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

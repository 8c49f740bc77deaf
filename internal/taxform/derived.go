package taxform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// derivedKeys compute taxpayer values that are not stored as a single attribute
var derivedKeys = map[string]func(Taxpayer) string{
	"full_name": func(t Taxpayer) string {
		return joinName(t.String("first_name"), t.String("last_name"))
	},
	"spouse_full_name": func(t Taxpayer) string {
		return joinName(t.String("spouse_first_name"), t.String("spouse_last_name"))
	},
	"property_address": func(t Taxpayer) string {
		return joinNonEmpty(", ", t.String("address"), t.String("city"), t.String("state"), t.String("zip"))
	},
	"city_state_zip": func(t Taxpayer) string {
		return joinNonEmpty(", ", t.String("city"), joinNonEmpty(" ", t.String("state"), t.String("zip")))
	},
	// no separate employer is modelled; sole proprietors file under their own name
	"employer_name": func(t Taxpayer) string {
		if name := strings.TrimSpace(t.String("employer_name")); name != "" {
			return name
		}
		return joinName(t.String("first_name"), t.String("last_name"))
	},
}

// taxpayerValue returns the value a taxpayer-table key fills with
func taxpayerValue(t Taxpayer, key string) string {
	if derive, ok := derivedKeys[key]; ok {
		return derive(t)
	}
	return t.String(key)
}

// IsDerivedKey reports whether key is computed from other taxpayer attributes
func IsDerivedKey(key string) bool {
	_, ok := derivedKeys[key]
	return ok
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// optionKey turns display text such as "Head of Household" into the
// option key head_of_household
func optionKey(s string) string {
	// a Caser is stateful and cannot be shared between fills
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(s)), "_")
}

// stringify renders a payload value the way it is written into a field
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

// truthy decides whether a boolean checkbox is switched on
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		switch strings.ToLower(s) {
		case "yes", "y", "on", "x":
			return true
		case "no", "n", "off":
			return false
		}
		return s != ""
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f != 0
		}
		return x.String() != ""
	}
	if b, err := cast.ToBoolE(v); err == nil {
		return b
	}
	return true
}

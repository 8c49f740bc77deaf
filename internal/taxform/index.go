package taxform

import (
	"strings"
)

// MatchTier records how a target identifier was resolved
type MatchTier int

const (
	MatchNone MatchTier = iota
	MatchExact
	MatchSuffix
	MatchSubstring
)

// String returns a string representation of the MatchTier
func (t MatchTier) String() string {
	switch t {
	case MatchExact:
		return "exact"
	case MatchSuffix:
		return "suffix"
	case MatchSubstring:
		return "substring"
	default:
		return "none"
	}
}

// fieldIndex maps full and short field identifiers of one loaded document to
// its widgets. It lives for a single fill.
type fieldIndex struct {
	byName map[string]Widget
	// full identifiers in document order
	names   []string
	widgets []Widget
}

func buildIndex(widgets []Widget) *fieldIndex {
	ix := &fieldIndex{byName: make(map[string]Widget, 2*len(widgets))}
	for _, w := range widgets {
		name := w.Name()
		if name == "" {
			continue
		}
		ix.byName[name] = w
		ix.names = append(ix.names, name)
		ix.widgets = append(ix.widgets, w)

		// last writer wins when full names share a trailing segment
		if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
			ix.byName[name[i+1:]] = w
		}
	}
	return ix
}

// lookup is the exact match against full and short identifiers
func (ix *fieldIndex) lookup(id string) (Widget, bool) {
	w, ok := ix.byName[id]
	return w, ok
}

// resolve tries an exact match, then full identifiers ending with id, then
// full identifiers containing id. Within a tier the shortest identifier
// wins, ties going to the one declared first. strict skips the substring tier.
func (ix *fieldIndex) resolve(id string, strict bool) (Widget, MatchTier) {
	if id == "" {
		return nil, MatchNone
	}
	if w, ok := ix.lookup(id); ok {
		return w, MatchExact
	}
	if w, ok := ix.best(func(name string) bool { return strings.HasSuffix(name, id) }); ok {
		return w, MatchSuffix
	}
	if strict {
		return nil, MatchNone
	}
	if w, ok := ix.best(func(name string) bool { return strings.Contains(name, id) }); ok {
		return w, MatchSubstring
	}
	return nil, MatchNone
}

func (ix *fieldIndex) best(match func(string) bool) (Widget, bool) {
	found := -1
	for i, name := range ix.names {
		if !match(name) {
			continue
		}
		if found < 0 || len(name) < len(ix.names[found]) {
			found = i
		}
	}
	if found < 0 {
		return nil, false
	}
	return ix.widgets[found], true
}

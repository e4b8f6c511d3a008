package table

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
)

// FacetKind says how a facet's selected values combine.
type FacetKind int

const (
	// Single facets have one value per row; a row matches when its value is any
	// of the selected ones. Selecting "" matches rows without a value.
	Single FacetKind = iota
	// Multi facets have a set of values per row (tags); a row matches when it
	// has every selected value. A selected "name" also matches "name=value".
	Multi
)

// RecentOption is the value of the option added by Recent.
const RecentOption = "recent"

// Facet is a filterable dimension of a table.
type Facet[T any] struct {
	Key    string
	Label  string
	Kind   FacetKind
	Values func(T) []string

	// OptionLabel renders an option value; the value itself is used when nil.
	OptionLabel func(string) string
}

// Field is a Single facet over one column value.
func Field[T any](key, label string, value func(T) any) Facet[T] {
	return Facet[T]{
		Key:    key,
		Label:  label,
		Kind:   Single,
		Values: func(it T) []string { return []string{Stringify(value(it))} },
	}
}

// Tags is a Multi facet over a list of "name" or "name=value" strings.
func Tags[T any](key, label string, tags func(T) []string) Facet[T] {
	return Facet[T]{Key: key, Label: label, Kind: Multi, Values: tags}
}

// Recent offers a single "recent" option matching rows updated within the window.
// age returns how many seconds ago a row was updated.
func Recent[T any](key, label string, within time.Duration, age func(T) int64) Facet[T] {
	limit := int64(within / time.Second)
	return Facet[T]{
		Key:   key,
		Label: label,
		Kind:  Multi,
		Values: func(it T) []string {
			if a := age(it); a >= 0 && a <= limit {
				return []string{RecentOption}
			}
			return nil
		},
		OptionLabel: func(string) string { return label },
	}
}

func (f Facet[T]) values(it T) []string {
	v := f.Values(it)
	if f.Kind == Single && len(v) == 0 {
		return []string{""}
	}
	return v
}

// matchAll reports whether values satisfy the selection. An empty selection
// matches everything.
func (f Facet[T]) matchAll(values, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	if f.Kind == Single {
		for _, sel := range selected {
			if f.match(values, sel) {
				return true
			}
		}
		return false
	}
	for _, sel := range selected {
		if !f.match(values, sel) {
			return false
		}
	}
	return true
}

// match reports whether a row with values would be shown if option were the only
// selected value.
func (f Facet[T]) match(values []string, option string) bool {
	if f.Kind == Single {
		v := ""
		if len(values) > 0 {
			v = values[0]
		}
		if option == "" {
			return strings.TrimSpace(v) == ""
		}
		return v == option
	}
	if strings.Contains(option, "=") {
		return slices.Contains(values, option)
	}
	for _, v := range values {
		if v == option || strings.HasPrefix(v, option+"=") {
			return true
		}
	}
	return false
}

// options lists the distinct values found in items plus any selected value that
// no row has any more. Values sort case-insensitively with the empty option last.
func (f Facet[T]) options(items []T, selected []string, coll *collate.Collator) []Option {
	seen := make(map[string]bool)
	var values []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	for _, it := range items {
		for _, v := range f.values(it) {
			if f.Kind == Single && strings.TrimSpace(v) == "" {
				v = ""
			}
			if f.Kind == Multi && v == "" {
				continue
			}
			add(v)
			if f.Kind == Multi {
				if name, _, ok := strings.Cut(v, "="); ok {
					add(name)
				}
			}
		}
	}
	for _, v := range selected {
		add(v)
	}

	slices.SortFunc(values, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "":
			return 1
		case b == "":
			return -1
		}
		return coll.CompareString(a, b)
	})

	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Value: v, Label: f.label(v), Selected: slices.Contains(selected, v)}
	}
	return out
}

func (f Facet[T]) label(v string) string {
	switch {
	case v == "":
		return EmptyLabel
	case f.OptionLabel != nil:
		return f.OptionLabel(v)
	}
	return v
}

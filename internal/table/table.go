// Package table derives what a list screen shows from a cached collection: the
// rows matching the search and the selected facets, sorted and cut into pages,
// plus a count for every facet option.
//
// Derive is a pure function of its inputs. It holds no state between calls, so one
// Engine serves any number of concurrent requests.
package table

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// EmptyLabel is shown for the option that selects rows without a value.
const EmptyLabel = "(empty)"

// Column is a sortable and optionally searchable value of a row.
type Column[T any] struct {
	Key    string
	Label  string
	Value  func(T) any
	Search bool

	// NoSort keeps the column out of ToggleSort targets (tag lists, images).
	NoSort bool
}

// Engine derives views over rows of type T.
type Engine[T any] struct {
	columns map[string]Column[T]
	order   []string
	facets  []Facet[T]
}

// New creates an engine over the given columns and facets.
func New[T any](columns []Column[T], facets ...Facet[T]) *Engine[T] {
	e := &Engine[T]{
		columns: make(map[string]Column[T], len(columns)),
		facets:  facets,
	}
	for _, c := range columns {
		e.columns[c.Key] = c
		e.order = append(e.order, c.Key)
	}
	return e
}

// Columns returns the column keys in declaration order.
func (e *Engine[T]) Columns() []string { return slices.Clone(e.order) }

// Sortable reports whether key names a sortable column, or a dotted path into one.
func (e *Engine[T]) Sortable(key string) bool {
	head, _, _ := strings.Cut(key, ".")
	c, ok := e.columns[head]
	return ok && !c.NoSort
}

// View is one derived page.
type View[T any] struct {
	Items      []T         `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
	SortBy     string      `json:"sort_by"`
	SortDir    Direction   `json:"sort_dir"`
	Facets     []FacetView `json:"facets"`
}

// FacetView is a facet with its options counted.
type FacetView struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Options []Option `json:"options"`
}

// Option is one selectable facet value. Count is the number of rows selecting this
// option alone would show, given the search and every other facet's selection.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

// Derive computes the view of items under s.
func (e *Engine[T]) Derive(items []T, s State) View[T] {
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.Page < 1 {
		s.Page = 1
	}

	// A Caser keeps state between calls and is not shared.
	searched := e.search(items, s.Search, cases.Fold())

	// values[i][f] holds facet f's values for searched[i]; pass[i][f] whether
	// they satisfy f's selection.
	values := make([][][]string, len(searched))
	pass := make([][]bool, len(searched))
	for i, it := range searched {
		values[i] = make([][]string, len(e.facets))
		pass[i] = make([]bool, len(e.facets))
		for f, facet := range e.facets {
			values[i][f] = facet.values(it)
			pass[i][f] = facet.matchAll(values[i][f], s.Filters[facet.Key])
		}
	}

	filtered := make([]T, 0, len(searched))
	for i, it := range searched {
		if !slices.Contains(pass[i], false) {
			filtered = append(filtered, it)
		}
	}

	coll := collate.New(language.Und, collate.IgnoreCase)
	e.sort(filtered, s, coll)

	v := View[T]{
		Total:    len(filtered),
		Page:     s.Page,
		PageSize: s.PageSize,
		SortBy:   s.SortBy,
		SortDir:  s.SortDir,
		Facets:   e.facetViews(items, values, pass, s, coll),
	}
	v.TotalPages = int(math.Ceil(float64(len(filtered)) / float64(s.PageSize)))
	start := min(s.start(), len(filtered))
	end := min(start+s.PageSize, len(filtered))
	v.Items = filtered[start:end]
	return v
}

// search keeps the rows where every whitespace separated term occurs in one of
// the searchable columns, ignoring case.
func (e *Engine[T]) search(items []T, term string, fold cases.Caser) []T {
	terms := strings.Fields(fold.String(term))
	if len(terms) == 0 {
		return items
	}
	var searchable []Column[T]
	for _, key := range e.order {
		if c := e.columns[key]; c.Search {
			searchable = append(searchable, c)
		}
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		parts := make([]string, 0, len(searchable))
		for _, c := range searchable {
			if s := Stringify(c.Value(it)); s != "" {
				parts = append(parts, s)
			}
		}
		text := fold.String(strings.Join(parts, " "))
		if allContained(text, terms) {
			out = append(out, it)
		}
	}
	return out
}

func allContained(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// sort orders rows stably by the state's sort key. Numbers compare numerically,
// everything else as case-insensitive text. Rows without a value sort last in
// both directions.
func (e *Engine[T]) sort(rows []T, s State, coll *collate.Collator) {
	if s.SortBy == "" || !e.Sortable(s.SortBy) {
		return
	}
	type keyed struct {
		row T
		key any
	}
	ks := make([]keyed, len(rows))
	for i, r := range rows {
		ks[i] = keyed{row: r, key: e.lookup(r, s.SortBy)}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		ea, eb := isEmpty(a.key), isEmpty(b.key)
		switch {
		case ea && eb:
			return 0
		case ea:
			return 1
		case eb:
			return -1
		}
		c := compare(a.key, b.key, coll)
		if s.SortDir == Desc {
			c = -c
		}
		return c
	})
	for i := range ks {
		rows[i] = ks[i].row
	}
}

// lookup resolves a column key or a dotted path into a column holding a
// map[string]any (prices.cib).
func (e *Engine[T]) lookup(row T, path string) any {
	if c, ok := e.columns[path]; ok {
		return normalize(c.Value(row))
	}
	head, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil
	}
	c, ok := e.columns[head]
	if !ok {
		return nil
	}
	v := normalize(c.Value(row))
	for _, part := range strings.Split(rest, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = normalize(m[part])
	}
	return v
}

func (e *Engine[T]) facetViews(items []T, values [][][]string, pass [][]bool, s State, coll *collate.Collator) []FacetView {
	out := make([]FacetView, 0, len(e.facets))
	for f, facet := range e.facets {
		selected := s.Filters[facet.Key]
		opts := facet.options(items, selected, coll)

		// Rows that pass every facet except this one.
		counts := make([]int, len(opts))
		for i := range values {
			if !othersPass(pass[i], f) {
				continue
			}
			for o := range opts {
				if facet.match(values[i][f], opts[o].Value) {
					counts[o]++
				}
			}
		}
		for o := range opts {
			opts[o].Count = counts[o]
		}
		out = append(out, FacetView{Key: facet.Key, Label: facet.Label, Options: opts})
	}
	return out
}

func othersPass(pass []bool, skip int) bool {
	for f, ok := range pass {
		if f != skip && !ok {
			return false
		}
	}
	return true
}

// normalize dereferences pointers and unwraps nullable values so that a missing
// value is always nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal
	case decimal.Decimal, string, map[string]any:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case decimal.Decimal:
		return x.InexactFloat64(), true
	}
	return 0, false
}

func compare(a, b any, coll *collate.Collator) int {
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return cmp.Compare(na, nb)
		}
	}
	return coll.CompareString(Stringify(a), Stringify(b))
}

// Stringify renders a column value for searching and facet matching. Missing
// values render as "".
func Stringify(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

package sqlstore

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/collectr/collectr/internal/remote"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// builder accumulates a statement and its bind arguments.
type builder struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func newBuilder(d Dialect) *builder {
	return &builder{dialect: d}
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) bind(v any) (string, error) {
	val, err := bindValue(v)
	if err != nil {
		return "", err
	}
	b.args = append(b.args, val)
	return b.dialect.Placeholder(len(b.args)), nil
}

func (b *builder) String() string { return b.sb.String() }

func (b *builder) where(filters []remote.Filter) error {
	if len(filters) == 0 {
		return nil
	}
	b.write(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			b.write(" AND ")
		}
		if err := b.filter(f); err != nil {
			return err
		}
	}
	return nil
}

var comparisons = map[remote.Op]string{
	remote.OpEq:  "=",
	remote.OpNeq: "<>",
	remote.OpGt:  ">",
	remote.OpGte: ">=",
	remote.OpLt:  "<",
	remote.OpLte: "<=",
}

func (b *builder) filter(f remote.Filter) error {
	if err := checkIdent(f.Column); err != nil {
		return err
	}

	switch f.Op {
	case remote.OpIsNull:
		b.write(f.Column, " IS NULL")
		return nil
	case remote.OpNotNull:
		b.write(f.Column, " IS NOT NULL")
		return nil
	case remote.OpIn:
		values, err := listOf(f.Value)
		if err != nil {
			return fmt.Errorf("filter %s: %w", f.Column, err)
		}
		if len(values) == 0 {
			b.write("1 = 0")
			return nil
		}
		holders := make([]string, len(values))
		for i, v := range values {
			if holders[i], err = b.bind(v); err != nil {
				return err
			}
		}
		b.write(f.Column, " IN (", strings.Join(holders, ", "), ")")
		return nil
	}

	cmp, ok := comparisons[f.Op]
	if !ok {
		return fmt.Errorf("unsupported filter operator %q", f.Op)
	}
	if f.Value == nil && f.Op == remote.OpEq {
		b.write(f.Column, " IS NULL")
		return nil
	}
	ph, err := b.bind(f.Value)
	if err != nil {
		return err
	}
	b.write(f.Column, " ", cmp, " ", ph)
	return nil
}

func listOf(v any) ([]any, error) {
	if vs, ok := v.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("in filter needs a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func (b *builder) orderAndPage(q remote.Query) error {
	if len(q.Order) > 0 {
		b.write(" ORDER BY ")
		for i, o := range q.Order {
			if err := checkIdent(o.Column); err != nil {
				return err
			}
			if i > 0 {
				b.write(", ")
			}
			b.write(o.Column)
			if o.Desc {
				b.write(" DESC")
			} else {
				b.write(" ASC")
			}
		}
	}
	if q.Limit > 0 {
		b.write(" LIMIT ", strconv.Itoa(q.Limit))
	} else if q.Offset > 0 {
		b.write(" ", b.dialect.LimitAll())
	}
	if q.Offset > 0 {
		b.write(" OFFSET ", strconv.Itoa(q.Offset))
	}
	return nil
}

// matchFilters turns a column → value map into equality filters in a stable order.
func matchFilters(match remote.Row) []remote.Filter {
	filters := make([]remote.Filter, 0, len(match))
	for _, col := range sortedColumns(match) {
		filters = append(filters, remote.Eq(col, match[col]))
	}
	return filters
}

func sortedColumns(row remote.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// assignments writes "a = ?, b = ?" for the columns of patch.
func (b *builder) assignments(patch remote.Row) error {
	for i, col := range sortedColumns(patch) {
		if err := checkIdent(col); err != nil {
			return err
		}
		ph, err := b.bind(patch[col])
		if err != nil {
			return fmt.Errorf("bind %s: %w", col, err)
		}
		if i > 0 {
			b.write(", ")
		}
		b.write(col, " = ", ph)
	}
	return nil
}

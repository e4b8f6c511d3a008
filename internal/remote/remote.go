// Package remote defines the contract with the authoritative store that holds every
// record. The rest of the application only talks to it through Store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Row is one record as a column → value map.
type Row map[string]any

// Op is a filter comparison.
type Op string

// Filter operators.
const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Filter restricts a query to rows whose Column compares to Value with Op.
// Value must be a slice for OpIn and is ignored for the null checks.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Neq matches rows whose column differs from value.
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }

// Gte matches rows whose column is at least value.
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }

// In matches rows whose column is one of values.
func In[T any](column string, values ...T) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vs}
}

// IsNull matches rows whose column is NULL.
func IsNull(column string) Filter { return Filter{Column: column, Op: OpIsNull} }

// NotNull matches rows whose column is not NULL.
func NotNull(column string) Filter { return Filter{Column: column, Op: OpNotNull} }

// Order sorts query results by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows from a table or view. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Where returns a query with the given filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q that also sorts by column.
func (q Query) OrderBy(column string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Desc: desc})
	return q
}

// Range returns a copy of q restricted to rows [from, to] inclusive.
func (q Query) Range(from, to int) Query {
	q.Offset = from
	q.Limit = to - from + 1
	return q
}

// Store is the authoritative remote store. Implementations report constraint
// violations and transport failures as *Error.
type Store interface {
	// Select returns the rows of a table or view matching q.
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Count returns the number of rows matching filters.
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	// Insert stores row and returns it as persisted, including generated columns.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies patch to the row with the given id and returns the result.
	Update(ctx context.Context, table string, id int64, patch Row) (Row, error)
	// UpdateWhere applies patch to every row whose columns equal match.
	UpdateWhere(ctx context.Context, table string, match Row, patch Row) ([]Row, error)
	// Delete removes the row with the given id.
	Delete(ctx context.Context, table string, id int64) error
	// DeleteWhere removes every row whose columns equal match and returns how many went.
	DeleteWhere(ctx context.Context, table string, match Row) (int64, error)
}

// Decode converts a row into T through its JSON field names.
func Decode[T any](row Row) (T, error) {
	var out T
	data, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode row into %T: %w", out, err)
	}
	return out, nil
}

// DecodeAll converts rows into a slice of T.
func DecodeAll[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := Decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts v into a row through its JSON field names. Numbers are kept as
// json.Number so integer ids survive unchanged.
func Encode(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode %T into row: %w", v, err)
	}
	return row, nil
}

// ID returns the integer id column of a row.
func (r Row) ID() (int64, bool) {
	return r.Int("id")
}

// Int returns column as an int64 when it holds an integer. Floats with a
// fractional part are not integers.
func (r Row) Int(column string) (int64, bool) {
	switch v := r[column].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

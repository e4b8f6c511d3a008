package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"reflect"

	"github.com/collectr/collectr/internal/remote"
)

// Dialect captures what differs between the SQL backends.
type Dialect interface {
	// Name is the dialect name used in logs.
	Name() string
	// Placeholder returns the bind placeholder for the n-th argument (1-based).
	Placeholder(n int) string
	// LimitAll is the clause that allows an OFFSET without a LIMIT.
	LimitAll() string
	// Violation classifies a constraint error, or returns ViolationNone.
	Violation(err error) remote.Violation
	// Unreachable reports whether err means the database could not be reached.
	Unreachable(err error) bool
	// Value normalizes a scanned column value.
	Value(v any) any
}

// bindValue converts a row value into something every driver accepts. Nested
// slices and maps are stored as JSON text.
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		return val.Float64()
	case []byte, driver.Valuer:
		return val, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return bindValue(rv.Elem().Interface())
	}
	return v, nil
}

// scanValue turns driver byte slices into strings so rows survive JSON encoding.
func scanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

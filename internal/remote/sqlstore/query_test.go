package sqlstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectr/collectr/internal/remote"
)

func TestBuilder_PostgresPlaceholders(t *testing.T) {
	b := newBuilder(Postgres())
	b.write("SELECT * FROM inventory")
	require.NoError(t, b.where([]remote.Filter{
		remote.Eq("product_id", 4),
		remote.In("inventory_status", "Normal", "Sold"),
		remote.IsNull("sale_id"),
	}))
	require.NoError(t, b.orderAndPage(remote.Query{Offset: 20}.OrderBy("id", true)))

	assert.Equal(t,
		"SELECT * FROM inventory WHERE product_id = $1 AND inventory_status IN ($2, $3) AND sale_id IS NULL ORDER BY id DESC LIMIT ALL OFFSET 20",
		b.String())
	assert.Equal(t, []any{4, "Normal", "Sold"}, b.args)
}

func TestBuilder_EqNilIsNull(t *testing.T) {
	b := newBuilder(SQLite())
	require.NoError(t, b.where(matchFilters(remote.Row{"value": nil, "tag_id": 2})))
	assert.Equal(t, " WHERE tag_id = ? AND value IS NULL", b.String())
}

func TestBuilder_RejectsBadColumns(t *testing.T) {
	b := newBuilder(SQLite())
	assert.Error(t, b.where([]remote.Filter{remote.Eq("id = 1 OR 1", 1)}))
	assert.Error(t, b.orderAndPage(remote.Query{}.OrderBy("Title", false)))
	assert.Error(t, b.assignments(remote.Row{"bad-name": 1}))
}

func TestBindValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"integer number", json.Number("42"), int64(42)},
		{"float number", json.Number("4.5"), 4.5},
		{"slice", []any{"Mint", "Worn"}, `["Mint","Worn"]`},
		{"string slice", []string{"a"}, `["a"]`},
		{"string", "x", "x"},
		{"nil pointer", (*string)(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bindValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	d := decimal.RequireFromString("9.99")
	got, err := bindValue(d)
	require.NoError(t, err)
	assert.Equal(t, d, got, "driver.Valuer passes through")
}

func TestPostgresDialect_Violation(t *testing.T) {
	d := Postgres()

	tests := []struct {
		code string
		want remote.Violation
	}{
		{"23503", remote.ViolationForeignKey},
		{"23505", remote.ViolationUnique},
		{"23502", remote.ViolationNotNull},
		{"23514", remote.ViolationCheck},
		{"42P01", remote.ViolationNone},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.want, d.Violation(err))
		})
	}

	assert.Equal(t, remote.ViolationNone, d.Violation(errors.New("plain")))
}

func TestPostgresDialect_Unreachable(t *testing.T) {
	d := Postgres()
	assert.True(t, d.Unreachable(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.False(t, d.Unreachable(&pgconn.PgError{Code: "23505"}))
}

func TestSQLiteDialect(t *testing.T) {
	d := SQLite()
	assert.Equal(t, remote.ViolationUnique,
		d.Violation(errors.New("constraint failed: UNIQUE constraint failed: product_tags.name (2067)")))
	assert.True(t, d.Unreachable(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.Equal(t, "x", d.Value([]byte("x")))
}

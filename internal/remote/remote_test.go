package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Notes *string  `json:"notes,omitempty"`
	Tags  []string `json:"tags"`
}

func TestEncodeDecode(t *testing.T) {
	row, err := Encode(sample{ID: 7, Name: "Zelda", Tags: []string{"Boxed"}})
	require.NoError(t, err)

	assert.Equal(t, json.Number("7"), row["id"])
	assert.NotContains(t, row, "notes")
	id, ok := row.ID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	got, err := Decode[sample](Row{"id": int64(7), "name": "Zelda", "tags": []any{"Boxed"}})
	require.NoError(t, err)
	assert.Equal(t, sample{ID: 7, Name: "Zelda", Tags: []string{"Boxed"}}, got)

	_, err = Decode[sample](Row{"id": "seven"})
	assert.Error(t, err)
}

func TestDecodeAll(t *testing.T) {
	got, err := DecodeAll[sample]([]Row{{"id": 1}, {"id": 2}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestRow_Int(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want int64
		ok   bool
	}{
		{"int64", int64(3), 3, true},
		{"int", 3, 3, true},
		{"float", 3.0, 3, true},
		{"fractional float", 1999.5, 0, false},
		{"fractional number", json.Number("1999.5"), 0, false},
		{"number", json.Number("3"), 3, true},
		{"string", "3", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Row{"n": tt.v}.Int("n")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_Range(t *testing.T) {
	q := Where(Eq("a", 1)).OrderBy("b", true).Range(1000, 1999)
	assert.Equal(t, 1000, q.Offset)
	assert.Equal(t, 1000, q.Limit)
	assert.Equal(t, []Order{{Column: "b", Desc: true}}, q.Order)
}

func TestError(t *testing.T) {
	rejected := Rejected("insert", "inventory", ViolationForeignKey, errors.New("FOREIGN KEY constraint failed"))
	assert.Contains(t, rejected.Error(), "foreign_key violation")

	v, ok := ViolationOf(fmt.Errorf("create: %w", rejected))
	require.True(t, ok)
	assert.Equal(t, ViolationForeignKey, v)
	assert.Equal(t, "One or more selected values are invalid. Please check your selections.", v.Cause())

	down := Unreachable("select", "products", errors.New("dial tcp: connection refused"))
	assert.True(t, IsUnreachable(down))
	assert.True(t, IsUnreachable(fmt.Errorf("load: %w", down)))
	_, ok = ViolationOf(down)
	assert.False(t, ok)

	nf := NotFound("update", "products", 4)
	v, _ = ViolationOf(nf)
	assert.Equal(t, ViolationNotFound, v)
	assert.Contains(t, nf.Error(), "no row with id 4")
}

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/remote"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertProduct(t *testing.T, s *Store, title string) int64 {
	t.Helper()
	row, err := s.Insert(context.Background(), "products", remote.Row{
		"product_title": title,
		"product_type":  "Game",
	})
	require.NoError(t, err)
	id, ok := row.ID()
	require.True(t, ok)
	return id
}

func TestOpenSQLite(t *testing.T) {
	s := newTestStore(t)

	var fk int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	tables := []string{
		"products", "product_prices", "inventory", "inventory_barcodes", "purchases", "sales",
		"sale_items", "product_tags", "inventory_tags", "product_tag_relationships",
		"inventory_tag_relationships", "inventory_status_transitions", "site_settings",
	}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}

	n, err := s.Count(context.Background(), "inventory_status_transitions")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestOpenSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path, logger.Discard().Logger)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path, logger.Discard().Logger)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.Count(context.Background(), "inventory_status_transitions")
	require.NoError(t, err)
	assert.Equal(t, 8, n, "seed must not duplicate")
}

func TestInsertAndSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertProduct(t, s, "Super Metroid")

	rows, err := s.Select(ctx, "view_products", remote.Where(remote.Eq("product_id", id)))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	p, err := remote.Decode[domain.ProductView](rows[0])
	require.NoError(t, err)
	assert.Equal(t, "Super Metroid", p.Title)
	assert.True(t, bool(p.IsActive))
	assert.Empty(t, p.Tags)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestSelect_OrderAndRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"C", "A", "B", "D"} {
		insertProduct(t, s, title)
	}

	q := remote.Query{}.OrderBy("product_title", false).Range(1, 2)
	rows, err := s.Select(ctx, "products", q)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[0]["product_title"])
	assert.Equal(t, "C", rows[1]["product_title"])

	rows, err = s.Select(ctx, "products", remote.Query{Offset: 3}.OrderBy("product_title", false))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "D", rows[0]["product_title"])

	rows, err = s.Select(ctx, "products", remote.Where(remote.In("product_title", "A", "D")))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.Select(ctx, "products", remote.Where(remote.In[string]("product_title")))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFetchAll_Pages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		insertProduct(t, s, string(rune('a'+i)))
	}

	rows, err := remote.FetchAll(ctx, s, "products", remote.Query{}.OrderBy("id", false), 3)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	first, _ := rows[0].ID()
	last, _ := rows[6].ID()
	assert.Less(t, first, last)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertProduct(t, s, "Zelda")

	row, err := s.Update(ctx, "products", id, remote.Row{"product_variant": "Gold"})
	require.NoError(t, err)
	assert.Equal(t, "Gold", row["product_variant"])

	_, err = s.Update(ctx, "products", 999, remote.Row{"product_variant": "Gold"})
	v, ok := remote.ViolationOf(err)
	require.True(t, ok)
	assert.Equal(t, remote.ViolationNotFound, v)
}

func TestUpdateWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := insertProduct(t, s, "Zelda")

	for i := 0; i < 2; i++ {
		_, err := s.Insert(ctx, "inventory", remote.Row{"product_id": pid})
		require.NoError(t, err)
	}

	rows, err := s.UpdateWhere(ctx, "inventory",
		remote.Row{"product_id": pid},
		remote.Row{"inventory_status": string(domain.StatusCollection)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "Collection", r["inventory_status"])
	}

	_, err = s.UpdateWhere(ctx, "inventory", nil, remote.Row{"inventory_status": "Normal"})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertProduct(t, s, "Zelda")

	require.NoError(t, s.Delete(ctx, "products", id))

	err := s.Delete(ctx, "products", id)
	v, _ := remote.ViolationOf(err)
	assert.Equal(t, remote.ViolationNotFound, v)
}

func TestDeleteWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := insertProduct(t, s, "Zelda")
	inv, err := s.Insert(ctx, "inventory", remote.Row{"product_id": pid})
	require.NoError(t, err)
	invID, _ := inv.ID()
	sale, err := s.Insert(ctx, "sales", remote.Row{"buyer_name": "Ann"})
	require.NoError(t, err)
	saleID, _ := sale.ID()
	_, err = s.Insert(ctx, "sale_items", remote.Row{"sale_id": saleID, "inventory_id": invID, "sold_price": "10.00"})
	require.NoError(t, err)

	n, err := s.DeleteWhere(ctx, "sale_items", remote.Row{"sale_id": saleID, "inventory_id": invID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteWhere(ctx, "sale_items", remote.Row{"sale_id": saleID, "inventory_id": invID})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.DeleteWhere(ctx, "sale_items", remote.Row{})
	assert.Error(t, err)
}

func TestViolations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := insertProduct(t, s, "Zelda")

	tests := []struct {
		name  string
		table string
		row   remote.Row
		want  remote.Violation
	}{
		{"foreign key", "inventory", remote.Row{"product_id": 999}, remote.ViolationForeignKey},
		{"check", "inventory", remote.Row{"product_id": pid, "inventory_status": "Lost"}, remote.ViolationCheck},
		{"not null", "products", remote.Row{"product_title": "X"}, remote.ViolationNotNull},
		{"unique", "product_tags", remote.Row{"name": "Boxed"}, remote.ViolationUnique},
	}

	_, err := s.Insert(ctx, "product_tags", remote.Row{"name": "Boxed"})
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Insert(ctx, tt.table, tt.row)
			require.Error(t, err)
			assert.False(t, remote.IsUnreachable(err))
			v, ok := remote.ViolationOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
			assert.NotEmpty(t, v.Cause())
		})
	}
}

func TestInventoryView_Aggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := insertProduct(t, s, "Zelda")

	inv, err := s.Insert(ctx, "inventory", remote.Row{"product_id": pid, "override_price": "12.50"})
	require.NoError(t, err)
	invID, _ := inv.ID()

	boxed, err := s.Insert(ctx, "inventory_tags", remote.Row{"name": "Boxed"})
	require.NoError(t, err)
	boxedID, _ := boxed.ID()
	cond, err := s.Insert(ctx, "inventory_tags", remote.Row{
		"name":       "Condition",
		"tag_type":   "set",
		"tag_values": []any{"Mint", "Worn"},
	})
	require.NoError(t, err)
	condID, _ := cond.ID()

	_, err = s.Insert(ctx, "inventory_tag_relationships", remote.Row{"inventory_id": invID, "tag_id": boxedID})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "inventory_tag_relationships", remote.Row{"inventory_id": invID, "tag_id": condID, "value": "Mint"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "inventory_barcodes", remote.Row{"inventory_id": invID, "barcode": "045496"})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "view_inventory", remote.Where(remote.Eq("inventory_id", invID)))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	v, err := remote.Decode[domain.InventoryView](rows[0])
	require.NoError(t, err)
	assert.Equal(t, "Zelda", v.Title)
	assert.Equal(t, domain.StatusNormal, v.Status)
	assert.ElementsMatch(t, []string{"Boxed", "Condition=Mint"}, v.Tags)
	assert.Equal(t, domain.StringList{"045496"}, v.Barcodes)
	require.True(t, v.OverridePrice.Valid)
	assert.Equal(t, "12.5", v.OverridePrice.Decimal.String())

	tags, err := s.Select(ctx, "view_inventory_tags", remote.Where(remote.Eq("id", condID)))
	require.NoError(t, err)
	tag, err := remote.Decode[domain.Tag](tags[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StringList{"Mint", "Worn"}, tag.Values)
	assert.Equal(t, 1, tag.RelationshipsCount)
	assert.True(t, tag.InUse())
}

func TestMasterTimestamp_Bumps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	read := func() string {
		rows, err := s.Select(ctx, "site_settings", remote.Where(remote.Eq("key", "master_timestamp")))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return rows[0]["last_updated"].(string)
	}

	before := read()
	_, err := s.DB().Exec("UPDATE site_settings SET last_updated = '2000-01-01T00:00:00.000Z'")
	require.NoError(t, err)
	insertProduct(t, s, "Zelda")
	after := read()

	assert.NotEqual(t, "2000-01-01T00:00:00.000Z", after)
	assert.GreaterOrEqual(t, after, before)
}

func TestInvalidIdentifier(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Select(context.Background(), "products; DROP TABLE products", remote.Query{})
	require.Error(t, err)
	_, ok := remote.ViolationOf(err)
	assert.False(t, ok)
}

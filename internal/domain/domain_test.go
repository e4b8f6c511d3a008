package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForShortcut(t *testing.T) {
	tests := []struct {
		key  rune
		want InventoryStatus
		ok   bool
	}{
		{'N', StatusNormal, true},
		{'c', StatusCollection, true},
		{'f', StatusForSale, true},
		{'S', StatusSold, true},
		{'x', "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			got, ok := StatusForShortcut(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInventoryStatus_Valid(t *testing.T) {
	for _, s := range InventoryStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, InventoryStatus("for sale").Valid())
}

func TestStringList_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want StringList
	}{
		{"array", `["a","b=1"]`, StringList{"a", "b=1"}},
		{"encoded array", `"[\"a\",\"b\"]"`, StringList{"a", "b"}},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
		{"null members dropped", `"[null]"`, StringList{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringList
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInventoryView_CanDelete(t *testing.T) {
	id := int64(3)

	assert.True(t, InventoryView{}.CanDelete())
	assert.False(t, InventoryView{PurchaseID: &id}.CanDelete())
	assert.False(t, InventoryView{SaleID: &id}.CanDelete())
	assert.True(t, InventoryView{SaleID: &id}.IsConnectedToSale())
}

func TestInventoryDraft_DraftView(t *testing.T) {
	now := time.Now()
	region := "PAL"
	product := &ProductView{ProductID: 9, Title: "Zelda", Type: "Game", Region: &region}

	v := InventoryDraft{ProductID: 9, Status: StatusCollection}.DraftView(product, now)

	assert.Equal(t, DraftID, v.InventoryID)
	assert.True(t, IsDraftID(v.InventoryID))
	assert.Equal(t, "Zelda", v.Title)
	assert.Equal(t, &region, v.Region)
	assert.Equal(t, StatusCollection, v.Status)
}

func TestTag_AllowsValue(t *testing.T) {
	set := Tag{Type: TagSet, Values: StringList{"Mint", "Worn"}}
	assert.True(t, set.AllowsValue("Mint"))
	assert.False(t, set.AllowsValue("Broken"))

	boolean := Tag{Type: TagBoolean}
	assert.True(t, boolean.AllowsValue(BooleanTagValue))
	assert.False(t, boolean.AllowsValue("yes"))

	assert.True(t, Tag{Type: TagText}.AllowsValue("anything"))
}

func TestTagScope_Tables(t *testing.T) {
	assert.Equal(t, "inventory_tags", ScopeInventory.Table())
	assert.Equal(t, "view_product_tags", ScopeProduct.View())
	assert.Equal(t, "product_tag_relationships", ScopeProduct.RelationshipTable())
	assert.Equal(t, "inventory_id", ScopeInventory.OwnerColumn())
}

func TestFlag_Unmarshal(t *testing.T) {
	var p struct {
		A Flag `json:"a"`
		B Flag `json:"b"`
		C Flag `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":true,"c":0}`), &p))
	assert.True(t, bool(p.A))
	assert.True(t, bool(p.B))
	assert.False(t, bool(p.C))

	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &f))
}

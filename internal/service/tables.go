package service

import (
	"time"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/table"
)

// RecentWindow is how long after an update a row counts as recently updated.
const RecentWindow = time.Hour

// InventoryTable is the table over the inventory collection. Search covers the
// product columns; tags filter by name or name=value.
func InventoryTable() *table.Engine[domain.InventoryView] {
	type row = domain.InventoryView
	return table.New(
		[]table.Column[row]{
			{Key: "inventory_id", Label: "ID", Value: func(v row) any { return v.InventoryID }},
			{Key: "product_title", Label: "Title", Value: func(v row) any { return v.Title }, Search: true},
			{Key: "product_variant", Label: "Variant", Value: func(v row) any { return v.Variant }, Search: true},
			{Key: "product_type", Label: "Type", Value: func(v row) any { return v.Type }, Search: true},
			{Key: "release_year", Label: "Year", Value: func(v row) any { return v.ReleaseYear }, Search: true},
			{Key: "region", Label: "Region", Value: func(v row) any { return v.Region }, Search: true},
			{Key: "rating", Label: "Rating", Value: func(v row) any { return v.Rating }, Search: true},
			{Key: "inventory_status", Label: "Status", Value: func(v row) any { return v.Status }},
			{Key: "purchase_seller", Label: "Seller", Value: func(v row) any { return v.PurchaseSeller }},
			{Key: "sale_buyer", Label: "Buyer", Value: func(v row) any { return v.SaleBuyer }},
			{Key: "override_price", Label: "Price", Value: func(v row) any { return v.OverridePrice }},
			{Key: "tags", Label: "Tags", Value: func(v row) any { return v.Tags }, NoSort: true},
			{Key: "barcodes", Label: "Barcodes", Value: func(v row) any { return v.Barcodes }, NoSort: true},
			{Key: "inventory_created_at", Label: "Added", Value: func(v row) any { return v.CreatedAt.Unix() }},
			{Key: "inventory_updated_secondsago", Label: "Updated", Value: func(v row) any { return v.UpdatedSecondsAgo }},
		},
		table.Field("product_type", "Type", func(v row) any { return v.Type }),
		table.Field("region", "Region", func(v row) any { return v.Region }),
		table.Field("inventory_status", "Status", func(v row) any { return v.Status }),
		table.Tags("tags", "Tags", func(v row) []string { return v.Tags }),
		table.Recent("recent", "Recently updated", RecentWindow, func(v row) int64 { return v.UpdatedSecondsAgo }),
	)
}

// ProductsTable is the table over the products collection.
func ProductsTable() *table.Engine[domain.ProductView] {
	type row = domain.ProductView
	return table.New(
		[]table.Column[row]{
			{Key: "product_id", Label: "ID", Value: func(v row) any { return v.ProductID }},
			{Key: "product_title", Label: "Title", Value: func(v row) any { return v.Title }, Search: true},
			{Key: "product_variant", Label: "Variant", Value: func(v row) any { return v.Variant }, Search: true},
			{Key: "product_type", Label: "Type", Value: func(v row) any { return v.Type }, Search: true},
			{Key: "release_year", Label: "Year", Value: func(v row) any { return v.ReleaseYear }, Search: true},
			{Key: "region", Label: "Region", Value: func(v row) any { return v.Region }, Search: true},
			{Key: "rating", Label: "Rating", Value: func(v row) any { return v.Rating }, Search: true},
			{Key: "product_group", Label: "Group", Value: func(v row) any { return v.Group }, Search: true},
			{Key: "inventory_count", Label: "Items", Value: func(v row) any { return v.InventoryCount }},
			{Key: "tags", Label: "Tags", Value: func(v row) any { return v.Tags }, NoSort: true},
			{Key: "product_updated_secondsago", Label: "Updated", Value: func(v row) any { return v.UpdatedSecondsAgo }},
		},
		table.Field("product_type", "Type", func(v row) any { return v.Type }),
		table.Field("region", "Region", func(v row) any { return v.Region }),
		table.Tags("tags", "Tags", func(v row) []string { return v.Tags }),
		table.Recent("recent", "Recently updated", RecentWindow, func(v row) int64 { return v.UpdatedSecondsAgo }),
	)
}

package service

import (
	"context"
	"fmt"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/remote"
)

// Cache keys of the collections the application keeps.
const (
	KeyProducts      cache.Key = "products"
	KeyInventory     cache.Key = "inventory"
	KeyPurchases     cache.Key = "purchases"
	KeySales         cache.Key = "sales"
	KeyProductTags   cache.Key = "product_tags"
	KeyInventoryTags cache.Key = "inventory_tags"
	KeyTransitions   cache.Key = "inventory_status_transitions"
)

// Collections are the typed cache collections, registered with their reload
// descriptors.
type Collections struct {
	Products      cache.Collection[domain.ProductView]
	Inventory     cache.Collection[domain.InventoryView]
	Purchases     cache.Collection[domain.PurchaseView]
	Sales         cache.Collection[domain.SaleView]
	ProductTags   cache.Collection[domain.Tag]
	InventoryTags cache.Collection[domain.Tag]
	Transitions   cache.Collection[domain.StatusTransition]
}

// RegisterCollections registers every collection on c.
func RegisterCollections(c *cache.Store) Collections {
	return Collections{
		Products: cache.NewCollection[domain.ProductView](c, KeyProducts, "view_products",
			remote.Query{}.OrderBy("product_title", false)),
		Inventory: cache.NewCollection[domain.InventoryView](c, KeyInventory, "view_inventory",
			remote.Query{}.OrderBy("inventory_created_at", true).OrderBy("inventory_id", true)),
		Purchases: cache.NewCollection[domain.PurchaseView](c, KeyPurchases, "view_purchases",
			remote.Query{}.OrderBy("purchase_created_at", true)),
		Sales: cache.NewCollection[domain.SaleView](c, KeySales, "view_sales",
			remote.Query{}.OrderBy("sale_created_at", true)),
		ProductTags: cache.NewCollection[domain.Tag](c, KeyProductTags, domain.ScopeProduct.View(),
			remote.Query{}.OrderBy("name", false)),
		InventoryTags: cache.NewCollection[domain.Tag](c, KeyInventoryTags, domain.ScopeInventory.View(),
			remote.Query{}.OrderBy("name", false)),
		Transitions: cache.NewCollection[domain.StatusTransition](c, KeyTransitions, "inventory_status_transitions",
			remote.Query{}.OrderBy("id", false)),
	}
}

// Tags returns the tag collection of scope.
func (c Collections) Tags(scope domain.TagScope) cache.Collection[domain.Tag] {
	if scope == domain.ScopeProduct {
		return c.ProductTags
	}
	return c.InventoryTags
}

// Preload loads every collection in dependency order, the way the UI warms its
// cache on start.
func (c Collections) Preload(ctx context.Context) error {
	loaders := []struct {
		key  cache.Key
		load func(context.Context) error
	}{
		{KeyTransitions, discard(c.Transitions.Load)},
		{KeyProductTags, discard(c.ProductTags.Load)},
		{KeyInventoryTags, discard(c.InventoryTags.Load)},
		{KeyProducts, discard(c.Products.Load)},
		{KeyPurchases, discard(c.Purchases.Load)},
		{KeySales, discard(c.Sales.Load)},
		{KeyInventory, discard(c.Inventory.Load)},
	}
	for _, l := range loaders {
		if err := l.load(ctx); err != nil {
			return fmt.Errorf("preload %s: %w", l.key, err)
		}
	}
	return nil
}

func discard[T any](load func(context.Context) ([]T, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := load(ctx)
		return err
	}
}

func idOfInventory(v domain.InventoryView) int64 { return v.InventoryID }
func idOfProduct(v domain.ProductView) int64     { return v.ProductID }
func idOfPurchase(v domain.PurchaseView) int64   { return v.PurchaseID }
func idOfSale(v domain.SaleView) int64           { return v.SaleID }
func idOfTag(t domain.Tag) int64                 { return t.ID }

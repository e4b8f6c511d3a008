package api

import (
	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/service"
	"github.com/collectr/collectr/internal/table"
)

// Services groups the services the handlers call.
type Services struct {
	Collections   service.Collections
	Products      *service.ProductService
	Prices        *service.PriceService
	Inventory     *service.InventoryService
	Purchases     *service.PurchaseService
	Sales         *service.SaleService
	ProductTags   *service.TagService
	InventoryTags *service.TagService
	Lifecycle     *lifecycle.Controller

	InventoryTable *table.Engine[domain.InventoryView]
	ProductsTable  *table.Engine[domain.ProductView]
}

// Tags returns the tag service of scope.
func (s *Services) Tags(scope domain.TagScope) *service.TagService {
	if scope == domain.ScopeProduct {
		return s.ProductTags
	}
	return s.InventoryTags
}

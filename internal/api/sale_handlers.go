package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/mutation"
)

func (s *Server) registerPurchaseRoutes() {
	register(s.api, huma.Operation{
		OperationID: "listPurchases",
		Method:      http.MethodGet,
		Path:        "/api/v1/purchases",
		Summary:     "List purchases",
		Tags:        []string{"Purchases"},
	}, s.handleListPurchases)

	register(s.api, huma.Operation{
		OperationID:   "createPurchase",
		Method:        http.MethodPost,
		Path:          "/api/v1/purchases",
		Summary:       "Create purchase",
		Tags:          []string{"Purchases"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreatePurchase)

	register(s.api, huma.Operation{
		OperationID: "updatePurchase",
		Method:      http.MethodPatch,
		Path:        "/api/v1/purchases/{id}",
		Summary:     "Update purchase",
		Tags:        []string{"Purchases"},
	}, s.handleUpdatePurchase)

	register(s.api, huma.Operation{
		OperationID:   "deletePurchase",
		Method:        http.MethodDelete,
		Path:          "/api/v1/purchases/{id}",
		Summary:       "Delete purchase",
		Tags:          []string{"Purchases"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeletePurchase)

	register(s.api, huma.Operation{
		OperationID: "listPurchaseItems",
		Method:      http.MethodGet,
		Path:        "/api/v1/purchases/{id}/items",
		Summary:     "List purchase items",
		Tags:        []string{"Purchases"},
	}, s.handlePurchaseItems)

	register(s.api, huma.Operation{
		OperationID:   "attachPurchaseItem",
		Method:        http.MethodPost,
		Path:          "/api/v1/purchases/{id}/items",
		Summary:       "Attach item to purchase",
		Description:   "Replaces any previous purchase of the item",
		Tags:          []string{"Purchases"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleAttachItem)

	register(s.api, huma.Operation{
		OperationID:   "detachPurchaseItem",
		Method:        http.MethodDelete,
		Path:          "/api/v1/inventory/{id}/purchase",
		Summary:       "Detach item from its purchase",
		Tags:          []string{"Purchases", "Inventory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDetachItem)
}

func (s *Server) registerSaleRoutes() {
	register(s.api, huma.Operation{
		OperationID: "listSales",
		Method:      http.MethodGet,
		Path:        "/api/v1/sales",
		Summary:     "List sales",
		Tags:        []string{"Sales"},
	}, s.handleListSales)

	register(s.api, huma.Operation{
		OperationID:   "createSale",
		Method:        http.MethodPost,
		Path:          "/api/v1/sales",
		Summary:       "Create sale",
		Description:   "New sales start Reserved unless a status is given",
		Tags:          []string{"Sales"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateSale)

	register(s.api, huma.Operation{
		OperationID: "getSale",
		Method:      http.MethodGet,
		Path:        "/api/v1/sales/{id}",
		Summary:     "Get sale",
		Tags:        []string{"Sales"},
	}, s.handleGetSale)

	register(s.api, huma.Operation{
		OperationID: "updateSale",
		Method:      http.MethodPatch,
		Path:        "/api/v1/sales/{id}",
		Summary:     "Update sale",
		Description: "Changes buyer, date or notes; the status moves through finalize",
		Tags:        []string{"Sales"},
	}, s.handleUpdateSale)

	register(s.api, huma.Operation{
		OperationID:   "deleteSale",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sales/{id}",
		Summary:       "Delete sale",
		Description:   "Releases the items of the sale back to For Sale",
		Tags:          []string{"Sales"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteSale)

	register(s.api, huma.Operation{
		OperationID: "listSaleItems",
		Method:      http.MethodGet,
		Path:        "/api/v1/sales/{id}/items",
		Summary:     "List sale items",
		Tags:        []string{"Sales"},
	}, s.handleSaleItems)

	register(s.api, huma.Operation{
		OperationID:   "addSaleItem",
		Method:        http.MethodPost,
		Path:          "/api/v1/sales/{id}/items",
		Summary:       "Add item to sale",
		Description:   "The sold price defaults to the item's override price",
		Tags:          []string{"Sales"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddSaleItem)

	register(s.api, huma.Operation{
		OperationID:   "removeSaleItem",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sales/{id}/items/{inventoryID}",
		Summary:       "Remove item from sale",
		Tags:          []string{"Sales"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRemoveSaleItem)

	register(s.api, huma.Operation{
		OperationID:   "finalizeSale",
		Method:        http.MethodPost,
		Path:          "/api/v1/sales/{id}/finalize",
		Summary:       "Finalize sale",
		Description:   "Marks the sale Finalized and its items Sold",
		Tags:          []string{"Sales"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleFinalizeSale)
}

// === DTOs ===

// CreatePurchaseRequest is the request body for creating a purchase.
type CreatePurchaseRequest struct {
	Seller *string `json:"seller_name,omitempty" doc:"Seller"`
	Origin *string `json:"origin,omitempty" doc:"Where the purchase was made"`
	Date   *string `json:"purchase_date,omitempty" doc:"Date as YYYY-MM-DD"`
	Cost   string  `json:"purchase_cost,omitempty" doc:"Total cost as a decimal string"`
	Notes  *string `json:"purchase_notes,omitempty" doc:"Notes"`
}

// CreatePurchaseInput wraps the create purchase request for Huma.
type CreatePurchaseInput struct {
	Body CreatePurchaseRequest
}

// PurchaseOutput wraps a purchase for Huma.
type PurchaseOutput struct {
	Body domain.Purchase
}

// PurchaseListOutput wraps a list of purchases for Huma.
type PurchaseListOutput struct {
	Body []domain.PurchaseView
}

// ItemRequest names an inventory item.
type ItemRequest struct {
	InventoryID int64 `json:"inventory_id" minimum:"1" doc:"Inventory item ID"`
}

// AttachItemInput wraps the attach request for Huma.
type AttachItemInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Purchase ID"`
	Body ItemRequest
}

// CreateSaleRequest is the request body for creating a sale.
type CreateSaleRequest struct {
	Buyer  *string `json:"buyer_name,omitempty" doc:"Buyer"`
	Status string  `json:"sale_status,omitempty" doc:"Reserved or Finalized; defaults to Reserved"`
	Date   *string `json:"sale_date,omitempty" doc:"Date as YYYY-MM-DD"`
	Notes  *string `json:"sale_notes,omitempty" doc:"Notes"`
}

// CreateSaleInput wraps the create sale request for Huma.
type CreateSaleInput struct {
	Body CreateSaleRequest
}

// SaleOutput wraps a sale for Huma.
type SaleOutput struct {
	Body domain.Sale
}

// SaleViewOutput wraps a sale row with totals for Huma.
type SaleViewOutput struct {
	Body domain.SaleView
}

// SaleListOutput wraps a list of sales for Huma.
type SaleListOutput struct {
	Body []domain.SaleView
}

// AddSaleItemRequest is the request body for adding an item to a sale.
type AddSaleItemRequest struct {
	InventoryID int64  `json:"inventory_id" minimum:"1" doc:"Inventory item ID"`
	Price       string `json:"sold_price,omitempty" doc:"Sold price; defaults to the override price"`
}

// AddSaleItemInput wraps the add item request for Huma.
type AddSaleItemInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Sale ID"`
	Body AddSaleItemRequest
}

// SaleItemInput identifies one item of a sale.
type SaleItemInput struct {
	ID          int64 `path:"id" minimum:"1" doc:"Sale ID"`
	InventoryID int64 `path:"inventoryID" minimum:"1" doc:"Inventory item ID"`
}

// SaleItemOutput wraps a sale item for Huma.
type SaleItemOutput struct {
	Body domain.SaleItem
}

// SaleItemsOutput wraps the items of a sale for Huma.
type SaleItemsOutput struct {
	Body []domain.SaleItem
}

// === Purchase handlers ===

func (s *Server) handleListPurchases(ctx context.Context, _ *struct{}) (*PurchaseListOutput, error) {
	purchases, err := s.services.Collections.Purchases.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	if purchases == nil {
		purchases = []domain.PurchaseView{}
	}
	return &PurchaseListOutput{Body: purchases}, nil
}

func (s *Server) handleCreatePurchase(ctx context.Context, input *CreatePurchaseInput) (*PurchaseOutput, error) {
	b := input.Body
	cost, err := parseMoney("purchase_cost", b.Cost)
	if err != nil {
		return nil, err
	}
	p, err := s.services.Purchases.Create(ctx, domain.PurchaseDraft{
		Seller: b.Seller,
		Origin: b.Origin,
		Date:   b.Date,
		Cost:   cost,
		Notes:  b.Notes,
	})
	if err != nil {
		return nil, err
	}
	return &PurchaseOutput{Body: p}, nil
}

func (s *Server) handleUpdatePurchase(ctx context.Context, input *PatchInput) (*PurchaseOutput, error) {
	p, err := s.services.Purchases.Update(ctx, input.ID, changesOf(input.Body))
	if err != nil {
		return nil, err
	}
	return &PurchaseOutput{Body: p}, nil
}

func (s *Server) handleDeletePurchase(ctx context.Context, input *IDInput) (*struct{}, error) {
	return nil, s.services.Purchases.Delete(ctx, input.ID)
}

func (s *Server) handlePurchaseItems(ctx context.Context, input *IDInput) (*InventoryListOutput, error) {
	items, err := s.services.Purchases.Items(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.InventoryView{}
	}
	return &InventoryListOutput{Body: items}, nil
}

func (s *Server) handleAttachItem(ctx context.Context, input *AttachItemInput) (*struct{}, error) {
	return nil, s.services.Purchases.Attach(ctx, input.ID, input.Body.InventoryID)
}

func (s *Server) handleDetachItem(ctx context.Context, input *IDInput) (*struct{}, error) {
	return nil, s.services.Purchases.Detach(ctx, input.ID)
}

// === Sale handlers ===

func (s *Server) handleListSales(ctx context.Context, _ *struct{}) (*SaleListOutput, error) {
	sales, err := s.services.Collections.Sales.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	if sales == nil {
		sales = []domain.SaleView{}
	}
	return &SaleListOutput{Body: sales}, nil
}

func (s *Server) handleCreateSale(ctx context.Context, input *CreateSaleInput) (*SaleOutput, error) {
	b := input.Body
	sale, err := s.services.Sales.Create(ctx, domain.SaleDraft{
		Buyer:  b.Buyer,
		Status: domain.SaleStatus(b.Status),
		Date:   b.Date,
		Notes:  b.Notes,
	})
	if err != nil {
		return nil, err
	}
	return &SaleOutput{Body: sale}, nil
}

func (s *Server) handleGetSale(ctx context.Context, input *IDInput) (*SaleViewOutput, error) {
	sale, err := s.services.Sales.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SaleViewOutput{Body: sale}, nil
}

func (s *Server) handleUpdateSale(ctx context.Context, input *PatchInput) (*SaleOutput, error) {
	sale, err := s.services.Sales.Update(ctx, input.ID, changesOf(input.Body))
	if err != nil {
		return nil, err
	}
	return &SaleOutput{Body: sale}, nil
}

func (s *Server) handleDeleteSale(ctx context.Context, input *IDInput) (*struct{}, error) {
	return nil, s.services.Sales.Delete(ctx, input.ID)
}

func (s *Server) handleSaleItems(ctx context.Context, input *IDInput) (*SaleItemsOutput, error) {
	items, err := s.services.Sales.Items(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.SaleItem{}
	}
	return &SaleItemsOutput{Body: items}, nil
}

func (s *Server) handleAddSaleItem(ctx context.Context, input *AddSaleItemInput) (*SaleItemOutput, error) {
	price, err := parseMoney("sold_price", input.Body.Price)
	if err != nil {
		return nil, err
	}
	item, err := s.services.Sales.AddItem(ctx, input.ID, input.Body.InventoryID, price)
	if err != nil {
		return nil, err
	}
	return &SaleItemOutput{Body: item}, nil
}

func (s *Server) handleRemoveSaleItem(ctx context.Context, input *SaleItemInput) (*struct{}, error) {
	return nil, s.services.Sales.RemoveItem(ctx, input.ID, input.InventoryID)
}

func (s *Server) handleFinalizeSale(ctx context.Context, input *IDInput) (*struct{}, error) {
	return nil, s.services.Sales.Finalize(ctx, input.ID)
}

package api

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/danielgtaylor/huma/v2"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/table"
)

func (s *Server) registerInventoryRoutes() {
	register(s.api, huma.Operation{
		OperationID: "listInventory",
		Method:      http.MethodGet,
		Path:        "/api/v1/inventory",
		Summary:     "List inventory",
		Description: "Returns one page of the inventory table with facet counts",
		Tags:        []string{"Inventory"},
	}, s.handleListInventory)

	register(s.api, huma.Operation{
		OperationID:   "createInventory",
		Method:        http.MethodPost,
		Path:          "/api/v1/inventory",
		Summary:       "Create inventory item",
		Tags:          []string{"Inventory"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateInventory)

	register(s.api, huma.Operation{
		OperationID: "getInventory",
		Method:      http.MethodGet,
		Path:        "/api/v1/inventory/{id}",
		Summary:     "Get inventory item",
		Tags:        []string{"Inventory"},
	}, s.handleGetInventory)

	register(s.api, huma.Operation{
		OperationID: "updateInventory",
		Method:      http.MethodPatch,
		Path:        "/api/v1/inventory/{id}",
		Summary:     "Update inventory item",
		Description: "Changes the given columns; status and sale move through their own endpoints",
		Tags:        []string{"Inventory"},
	}, s.handleUpdateInventory)

	register(s.api, huma.Operation{
		OperationID:   "deleteInventory",
		Method:        http.MethodDelete,
		Path:          "/api/v1/inventory/{id}",
		Summary:       "Delete inventory item",
		Description:   "Only items without a purchase or a sale can be deleted",
		Tags:          []string{"Inventory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteInventory)

	register(s.api, huma.Operation{
		OperationID: "getInventoryTransitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/inventory/{id}/transitions",
		Summary:     "List status transitions",
		Description: "Evaluates every status as a target for the item",
		Tags:        []string{"Inventory"},
	}, s.handleListTransitions)

	register(s.api, huma.Operation{
		OperationID: "setInventoryStatus",
		Method:      http.MethodPost,
		Path:        "/api/v1/inventory/{id}/status",
		Summary:     "Change status",
		Tags:        []string{"Inventory"},
	}, s.handleSetStatus)

	register(s.api, huma.Operation{
		OperationID: "inventoryShortcut",
		Method:      http.MethodPost,
		Path:        "/api/v1/inventory/{id}/shortcut",
		Summary:     "Change status by keyboard shortcut",
		Description: "N, C, F and S select Normal, Collection, For Sale and Sold",
		Tags:        []string{"Inventory"},
	}, s.handleShortcut)

	register(s.api, huma.Operation{
		OperationID: "getInventoryTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/inventory/{id}/tags",
		Summary:     "Get inventory item tags",
		Tags:        []string{"Inventory", "Tags"},
	}, s.handleGetInventoryTags)

	register(s.api, huma.Operation{
		OperationID: "setInventoryTags",
		Method:      http.MethodPut,
		Path:        "/api/v1/inventory/{id}/tags",
		Summary:     "Set inventory item tags",
		Tags:        []string{"Inventory", "Tags"},
	}, s.handleSetInventoryTags)

	register(s.api, huma.Operation{
		OperationID: "listBarcodes",
		Method:      http.MethodGet,
		Path:        "/api/v1/inventory/{id}/barcodes",
		Summary:     "List barcodes",
		Tags:        []string{"Inventory"},
	}, s.handleListBarcodes)

	register(s.api, huma.Operation{
		OperationID:   "addBarcode",
		Method:        http.MethodPost,
		Path:          "/api/v1/inventory/{id}/barcodes",
		Summary:       "Add barcode",
		Tags:          []string{"Inventory"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddBarcode)

	register(s.api, huma.Operation{
		OperationID:   "removeBarcode",
		Method:        http.MethodDelete,
		Path:          "/api/v1/inventory/{id}/barcodes/{code}",
		Summary:       "Remove barcode",
		Tags:          []string{"Inventory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRemoveBarcode)

	register(s.api, huma.Operation{
		OperationID: "findBarcode",
		Method:      http.MethodGet,
		Path:        "/api/v1/barcodes/{code}",
		Summary:     "Find items by barcode",
		Tags:        []string{"Inventory"},
	}, s.handleFindBarcode)
}

// === DTOs ===

// ListInventoryInput contains the table parameters for inventory.
type ListInventoryInput struct {
	TableInput
}

// InventoryPageOutput wraps an inventory page for Huma.
type InventoryPageOutput struct {
	Body table.View[domain.InventoryView]
}

// CreateInventoryRequest is the request body for creating an inventory item.
type CreateInventoryRequest struct {
	ProductID     int64   `json:"product_id,omitempty" doc:"Product ID"`
	Status        string  `json:"inventory_status,omitempty" doc:"Normal, Collection or For Sale"`
	PurchaseID    *int64  `json:"purchase_id,omitempty" doc:"Purchase the item came from"`
	OverridePrice string  `json:"override_price,omitempty" doc:"Asking price as a decimal string"`
	Notes         *string `json:"inventory_notes,omitempty" doc:"Notes"`
}

// CreateInventoryInput wraps the create inventory request for Huma.
type CreateInventoryInput struct {
	Body CreateInventoryRequest
}

// InventoryOutput wraps an inventory row for Huma.
type InventoryOutput struct {
	Body domain.Inventory
}

// InventoryViewOutput wraps a denormalized inventory row for Huma.
type InventoryViewOutput struct {
	Body domain.InventoryView
}

// InventoryListOutput wraps a list of inventory rows for Huma.
type InventoryListOutput struct {
	Body []domain.InventoryView
}

// TransitionOption is the evaluation of one target status.
type TransitionOption struct {
	Status  domain.InventoryStatus `json:"status" doc:"Target status"`
	Allowed bool                   `json:"allowed" doc:"Whether the move is legal now"`
	Kind    lifecycle.Kind         `json:"kind,omitempty" doc:"What the move would do"`
	Reason  string                 `json:"reason,omitempty" doc:"Why the move is not legal"`
}

// TransitionsOutput wraps the transition options for Huma.
type TransitionsOutput struct {
	Body []TransitionOption
}

// SetStatusRequest is the request body for changing the status.
type SetStatusRequest struct {
	Status string `json:"status" doc:"Target status"`
}

// SetStatusInput wraps the status request for Huma.
type SetStatusInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Inventory item ID"`
	Body SetStatusRequest
}

// ShortcutRequest is the request body for a keyboard shortcut.
type ShortcutRequest struct {
	Key string `json:"key" minLength:"1" maxLength:"1" doc:"Pressed key"`
}

// ShortcutInput wraps the shortcut request for Huma.
type ShortcutInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Inventory item ID"`
	Body ShortcutRequest
}

// PlanOutput wraps an applied transition for Huma.
type PlanOutput struct {
	Body lifecycle.Plan
}

// BarcodeRequest is the request body for adding a barcode.
type BarcodeRequest struct {
	Barcode string `json:"barcode" doc:"Scanned code"`
}

// AddBarcodeInput wraps the barcode request for Huma.
type AddBarcodeInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Inventory item ID"`
	Body BarcodeRequest
}

// BarcodeInput identifies one barcode of an item.
type BarcodeInput struct {
	ID   int64  `path:"id" minimum:"1" doc:"Inventory item ID"`
	Code string `path:"code" doc:"Barcode"`
}

// FindBarcodeInput contains the scanned code to look up.
type FindBarcodeInput struct {
	Code string `path:"code" doc:"Barcode"`
}

// BarcodeOutput wraps a barcode for Huma.
type BarcodeOutput struct {
	Body domain.Barcode
}

// BarcodesOutput wraps a list of barcodes for Huma.
type BarcodesOutput struct {
	Body []domain.Barcode
}

// === Handlers ===

func (s *Server) handleListInventory(ctx context.Context, input *ListInventoryInput) (*InventoryPageOutput, error) {
	st, err := state(s.inventoryTable, input.TableInput, "inventory_created_at")
	if err != nil {
		return nil, err
	}
	if input.Sort == "" {
		st.SortDir = table.Desc
	}
	items, err := s.services.Collections.Inventory.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	return &InventoryPageOutput{Body: s.inventoryTable.Derive(items, st)}, nil
}

func (s *Server) handleCreateInventory(ctx context.Context, input *CreateInventoryInput) (*InventoryOutput, error) {
	b := input.Body
	price, err := parseMoney("override_price", b.OverridePrice)
	if err != nil {
		return nil, err
	}
	it, err := s.services.Inventory.Create(ctx, domain.InventoryDraft{
		ProductID:     b.ProductID,
		Status:        domain.InventoryStatus(b.Status),
		PurchaseID:    b.PurchaseID,
		OverridePrice: price,
		Notes:         b.Notes,
	})
	if err != nil {
		return nil, err
	}
	return &InventoryOutput{Body: it}, nil
}

func (s *Server) handleGetInventory(ctx context.Context, input *IDInput) (*InventoryViewOutput, error) {
	it, err := s.services.Inventory.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &InventoryViewOutput{Body: it}, nil
}

func (s *Server) handleUpdateInventory(ctx context.Context, input *PatchInput) (*InventoryOutput, error) {
	it, err := s.services.Inventory.Update(ctx, input.ID, changesOf(input.Body))
	if err != nil {
		return nil, err
	}
	return &InventoryOutput{Body: it}, nil
}

func (s *Server) handleDeleteInventory(ctx context.Context, input *IDInput) (*struct{}, error) {
	return nil, s.services.Inventory.Delete(ctx, input.ID)
}

func (s *Server) handleListTransitions(ctx context.Context, input *IDInput) (*TransitionsOutput, error) {
	item, err := s.services.Inventory.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	options := make([]TransitionOption, 0, len(domain.InventoryStatuses))
	for _, to := range domain.InventoryStatuses {
		plan, err := s.services.Lifecycle.Evaluate(item, to)
		opt := TransitionOption{Status: to, Allowed: err == nil}
		if err != nil {
			opt.Reason = err.Error()
		} else {
			opt.Kind = plan.Kind
		}
		options = append(options, opt)
	}
	return &TransitionsOutput{Body: options}, nil
}

func (s *Server) handleSetStatus(ctx context.Context, input *SetStatusInput) (*PlanOutput, error) {
	plan, err := s.services.Inventory.SetStatus(ctx, input.ID, domain.InventoryStatus(input.Body.Status))
	if err != nil {
		return nil, err
	}
	return &PlanOutput{Body: plan}, nil
}

func (s *Server) handleShortcut(ctx context.Context, input *ShortcutInput) (*PlanOutput, error) {
	key, _ := utf8.DecodeRuneInString(input.Body.Key)
	if key == utf8.RuneError {
		return nil, domainerrors.Validation("validation failed: key is required")
	}
	plan, err := s.services.Lifecycle.ApplyShortcut(ctx, input.ID, key)
	if err != nil {
		return nil, err
	}
	return &PlanOutput{Body: plan}, nil
}

func (s *Server) handleGetInventoryTags(ctx context.Context, input *IDInput) (*TagsOutput, error) {
	return getTags(ctx, s.services.InventoryTags, input.ID)
}

func (s *Server) handleSetInventoryTags(ctx context.Context, input *SetTagsInput) (*TagsOutput, error) {
	return setTags(ctx, s.services.InventoryTags, input.ID, input.Body.Tags)
}

func (s *Server) handleListBarcodes(ctx context.Context, input *IDInput) (*BarcodesOutput, error) {
	codes, err := s.services.Inventory.Barcodes(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &BarcodesOutput{Body: codes}, nil
}

func (s *Server) handleAddBarcode(ctx context.Context, input *AddBarcodeInput) (*BarcodeOutput, error) {
	b, err := s.services.Inventory.AddBarcode(ctx, input.ID, input.Body.Barcode)
	if err != nil {
		return nil, err
	}
	return &BarcodeOutput{Body: b}, nil
}

func (s *Server) handleRemoveBarcode(ctx context.Context, input *BarcodeInput) (*struct{}, error) {
	return nil, s.services.Inventory.RemoveBarcode(ctx, input.ID, input.Code)
}

func (s *Server) handleFindBarcode(ctx context.Context, input *FindBarcodeInput) (*InventoryListOutput, error) {
	items, err := s.services.Inventory.ByBarcode(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.InventoryView{}
	}
	return &InventoryListOutput{Body: items}, nil
}

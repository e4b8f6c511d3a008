package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/pipeline"
	"github.com/collectr/collectr/internal/relation"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

const barcodesTable = "inventory_barcodes"

// Columns of an inventory item that only the lifecycle controller and the sale
// service may write.
var managedInventoryColumns = []string{"inventory_status", "sale_id"}

// InventoryService manages inventory items and their barcodes.
type InventoryService struct {
	*mutation.Service[domain.InventoryView, domain.InventoryDraft]
	cols      Collections
	tags      *TagService
	lifecycle *lifecycle.Controller
	remote    remote.Store
	runner    *mutation.Runner
	logger    *slog.Logger
}

// NewInventoryService creates the inventory service. tags must be the inventory
// scope tag service.
func NewInventoryService(
	runner *mutation.Runner,
	store remote.Store,
	v *validation.Validator,
	cols Collections,
	tags *TagService,
	ctrl *lifecycle.Controller,
	logger *slog.Logger,
) *InventoryService {
	v.SetMessage("product_id", "required", "Product is required")
	v.SetMessage("inventory_status", "required", "Status is required")
	v.SetMessage("inventory_status", "valid", "Status must be one of Normal, Collection, For Sale or Sold")

	s := &InventoryService{
		cols:      cols,
		tags:      tags,
		lifecycle: ctrl,
		remote:    store,
		runner:    runner,
		logger:    logger.With("component", "inventory"),
	}
	s.Service = mutation.NewService(runner, store, v, mutation.Entity[domain.InventoryView, domain.InventoryDraft]{
		Name:     "inventory item",
		Table:    "inventory",
		Key:      cols.Inventory.Key(),
		IDColumn: "inventory_id",
		IDOf:     idOfInventory,
		Draft:    s.draft,
		Prepend:  true,
		Check:    checkInventoryDraft,
		// purchase_id changes through AttachItem and DetachItem of purchases.
		Columns:    []string{"product_id", "override_price", "inventory_notes"},
		IntColumns: []string{"product_id"},
		ChangeRules: map[string]string{
			"product_id": "required",
		},
		CanDelete: func(item domain.InventoryView) error {
			if !item.CanDelete() {
				return domainerrors.Conflict("Cannot delete an item that is linked to a purchase or a sale")
			}
			return nil
		},
		Touch:   touchInventory,
		Refetch: []cache.Key{KeyProducts, KeyPurchases},
	})
	return s
}

func (s *InventoryService) draft(d domain.InventoryDraft, now time.Time) domain.InventoryView {
	if p, ok := s.cols.Products.Find(func(p domain.ProductView) bool { return p.ProductID == d.ProductID }); ok {
		return d.DraftView(&p, now)
	}
	return d.DraftView(nil, now)
}

func checkInventoryDraft(d domain.InventoryDraft) error {
	if d.Status == domain.StatusSold {
		return domainerrors.ValidationWithDetails("validation failed: items are sold through a sale",
			map[string]string{"inventory_status": "An item can only be Sold through a sale"})
	}
	return nil
}

func touchInventory(v domain.InventoryView, now time.Time) domain.InventoryView {
	v.UpdatedAt = now
	v.UpdatedSecondsAgo = 0
	return v
}

// Create validates and creates an inventory item. The draft row is shown first in
// the inventory table with the product columns copied from the cached product.
func (s *InventoryService) Create(ctx context.Context, draft domain.InventoryDraft, opts ...mutation.Option) (domain.Inventory, error) {
	return mutation.Decoded[domain.Inventory](s.Service.Create(ctx, draft, opts...))
}

// Get returns an inventory item, from the cache when it is loaded.
func (s *InventoryService) Get(ctx context.Context, id int64) (domain.InventoryView, error) {
	if it, ok := s.Find(id); ok {
		return it, nil
	}
	rows, err := s.remote.Select(ctx, "view_inventory", remote.Where(remote.Eq("inventory_id", id)))
	if err != nil {
		return domain.InventoryView{}, mutation.Classify(err)
	}
	if len(rows) == 0 {
		return domain.InventoryView{}, domainerrors.NotFoundf("inventory item %d not found", id)
	}
	return remote.Decode[domain.InventoryView](rows[0])
}

// Update changes the plain columns of an item. Status and sale changes go through
// the lifecycle controller.
func (s *InventoryService) Update(ctx context.Context, id int64, changes remote.Row, opts ...mutation.Option) (domain.Inventory, error) {
	for _, col := range managedInventoryColumns {
		if _, ok := changes[col]; ok {
			return domain.Inventory{}, domainerrors.ValidationWithDetails("validation failed: "+col+" is managed by status transitions",
				map[string]string{col: "Use a status transition to change this value"})
		}
	}
	return mutation.Decoded[domain.Inventory](s.Service.Update(ctx, id, changes, opts...))
}

// Delete removes an item that is linked to neither a purchase nor a sale.
func (s *InventoryService) Delete(ctx context.Context, id int64, opts ...mutation.Option) error {
	if !domain.IsDraftID(id) {
		item, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !item.CanDelete() {
			return domainerrors.Conflict("Cannot delete an item that is linked to a purchase or a sale")
		}
	}
	return s.Service.Delete(ctx, id, opts...)
}

// SetStatus moves an item to a status through the lifecycle controller.
func (s *InventoryService) SetStatus(ctx context.Context, id int64, to domain.InventoryStatus) (lifecycle.Plan, error) {
	return s.lifecycle.Apply(ctx, id, to)
}

// Save writes an edit form: the plain columns first, then the status, then the
// pending tag changes. A failing step stops the ones after it.
func (s *InventoryService) Save(ctx context.Context, id int64, changes remote.Row, status *domain.InventoryStatus, tags *relation.Selector) error {
	if tags != nil && tags.EntityID() != id {
		return domainerrors.Validationf("validation failed: tag selector belongs to item %d", tags.EntityID())
	}
	return pipeline.Run(ctx,
		pipeline.When(len(changes) > 0, pipeline.Step{Name: "update item", Run: func(ctx context.Context) error {
			_, err := s.Update(ctx, id, changes)
			return err
		}}),
		pipeline.When(status != nil, pipeline.Step{Name: "change status", Run: func(ctx context.Context) error {
			_, err := s.lifecycle.Apply(ctx, id, *status)
			return err
		}}),
		pipeline.When(tags != nil && tags.HasChanges(), pipeline.Step{Name: "apply tags", Run: tags.ApplyChanges}),
	)
}

// Tags opens the tag selector of an item.
func (s *InventoryService) Tags(ctx context.Context, id int64) (*relation.Selector, error) {
	return s.tags.Selector(ctx, id)
}

// Barcodes lists the barcodes attached to an item.
func (s *InventoryService) Barcodes(ctx context.Context, id int64) ([]domain.Barcode, error) {
	rows, err := s.remote.Select(ctx, barcodesTable, remote.Where(remote.Eq("inventory_id", id)).OrderBy("id", false))
	if err != nil {
		return nil, mutation.Classify(err)
	}
	return remote.DecodeAll[domain.Barcode](rows)
}

// ByBarcode returns the loaded items carrying code.
func (s *InventoryService) ByBarcode(ctx context.Context, code string) ([]domain.InventoryView, error) {
	code = strings.TrimSpace(code)
	items, err := s.cols.Inventory.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	var out []domain.InventoryView
	for _, it := range items {
		if slices.Contains(it.Barcodes, code) {
			out = append(out, it)
		}
	}
	return out, nil
}

// AddBarcode attaches a barcode to an item.
func (s *InventoryService) AddBarcode(ctx context.Context, id int64, code string) (domain.Barcode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Barcode{}, domainerrors.ValidationWithDetails("validation failed: barcode is required",
			map[string]string{"barcode": "Barcode is required"})
	}
	if domain.IsDraftID(id) {
		return domain.Barcode{}, domainerrors.Conflict("inventory item is still being saved")
	}
	if it, ok := s.Find(id); ok && slices.Contains(it.Barcodes, code) {
		return domain.Barcode{}, domainerrors.AlreadyExists("Barcode " + code + " is already attached to this item")
	}

	return mutation.Decoded[domain.Barcode](mutation.Run(ctx, s.runner, mutation.Op[remote.Row]{
		Entity: "barcode",
		Name:   "add",
		ID:     id,
		Optimistic: []mutation.Target{s.patchBarcodes(id, func(codes []string) []string {
			return append(slices.Clone(codes), code)
		})},
		Remote: func(ctx context.Context) (remote.Row, error) {
			return s.remote.Insert(ctx, barcodesTable, remote.Row{"inventory_id": id, "barcode": code})
		},
		Success: "Barcode added",
	}))
}

// RemoveBarcode detaches a barcode from an item.
func (s *InventoryService) RemoveBarcode(ctx context.Context, id int64, code string) error {
	code = strings.TrimSpace(code)
	return mutation.Exec(ctx, s.runner, mutation.Op[struct{}]{
		Entity: "barcode",
		Name:   "remove",
		ID:     id,
		Optimistic: []mutation.Target{s.patchBarcodes(id, func(codes []string) []string {
			return slices.DeleteFunc(slices.Clone(codes), func(c string) bool { return c == code })
		})},
		Remote: func(ctx context.Context) (struct{}, error) {
			n, err := s.remote.DeleteWhere(ctx, barcodesTable, remote.Row{"inventory_id": id, "barcode": code})
			if err != nil {
				return struct{}{}, err
			}
			if n == 0 {
				return struct{}{}, domainerrors.NotFoundf("barcode %s is not attached to item %d", code, id)
			}
			return struct{}{}, nil
		},
		Success: "Barcode removed",
	})
}

func (s *InventoryService) patchBarcodes(id int64, fn func([]string) []string) mutation.Target {
	return mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
		mutation.ReplaceByID[domain.InventoryView]{ID: id, Replace: func(v domain.InventoryView) domain.InventoryView {
			v.Barcodes = fn(v.Barcodes)
			return v
		}})
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

// PurchaseService manages purchases and the items bought in them.
type PurchaseService struct {
	*mutation.Service[domain.PurchaseView, domain.PurchaseDraft]
	cols   Collections
	remote remote.Store
	runner *mutation.Runner
	logger *slog.Logger
}

// NewPurchaseService creates a PurchaseService.
func NewPurchaseService(runner *mutation.Runner, store remote.Store, v *validation.Validator, cols Collections, logger *slog.Logger) *PurchaseService {
	v.SetMessage("purchase_date", "datetime", "Purchase date must be a date (YYYY-MM-DD)")

	s := &PurchaseService{cols: cols, remote: store, runner: runner, logger: logger.With("component", "purchases")}
	s.Service = mutation.NewService(runner, store, v, mutation.Entity[domain.PurchaseView, domain.PurchaseDraft]{
		Name:     "purchase",
		Table:    "purchases",
		Key:      cols.Purchases.Key(),
		IDColumn: "purchase_id",
		IDOf:     idOfPurchase,
		Draft: func(d domain.PurchaseDraft, now time.Time) domain.PurchaseView {
			return domain.PurchaseView{
				PurchaseID: domain.DraftID,
				Seller:     d.Seller,
				Origin:     d.Origin,
				Date:       d.Date,
				Cost:       d.Cost,
				Notes:      d.Notes,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		},
		Prepend: true,
		Columns: []string{"seller_name", "origin", "purchase_date", "purchase_cost", "purchase_notes"},
		ChangeRules: map[string]string{
			"purchase_date": "omitempty,datetime=2006-01-02",
		},
		Related: s.patchSeller,
		Touch: func(p domain.PurchaseView, now time.Time) domain.PurchaseView {
			p.UpdatedAt = now
			p.SecondsAgo = 0
			return p
		},
		// Deleting a purchase clears purchase_id on its items in the store.
		Refetch: []cache.Key{KeyInventory},
	})
	return s
}

// Create validates and creates a purchase.
func (s *PurchaseService) Create(ctx context.Context, draft domain.PurchaseDraft, opts ...mutation.Option) (domain.Purchase, error) {
	return mutation.Decoded[domain.Purchase](s.Service.Create(ctx, draft, opts...))
}

// Update changes a purchase.
func (s *PurchaseService) Update(ctx context.Context, id int64, changes remote.Row, opts ...mutation.Option) (domain.Purchase, error) {
	return mutation.Decoded[domain.Purchase](s.Service.Update(ctx, id, changes, opts...))
}

// Items returns the loaded inventory items bought in a purchase.
func (s *PurchaseService) Items(ctx context.Context, id int64) ([]domain.InventoryView, error) {
	items, err := s.cols.Inventory.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	var out []domain.InventoryView
	for _, it := range items {
		if it.PurchaseID != nil && *it.PurchaseID == id {
			out = append(out, it)
		}
	}
	return out, nil
}

// Attach records that an inventory item was bought in a purchase, replacing any
// previous purchase of the item.
func (s *PurchaseService) Attach(ctx context.Context, purchaseID, inventoryID int64) error {
	if domain.IsDraftID(purchaseID) || domain.IsDraftID(inventoryID) {
		return domainerrors.Conflict("purchase or item is still being saved")
	}
	var seller *string
	if p, ok := s.Find(purchaseID); ok {
		seller = p.Seller
	}
	return s.link(ctx, "attach", inventoryID, &purchaseID, seller)
}

// Detach clears the purchase of an inventory item.
func (s *PurchaseService) Detach(ctx context.Context, inventoryID int64) error {
	if domain.IsDraftID(inventoryID) {
		return domainerrors.Conflict("inventory item is still being saved")
	}
	return s.link(ctx, "detach", inventoryID, nil, nil)
}

func (s *PurchaseService) link(ctx context.Context, op string, inventoryID int64, purchaseID *int64, seller *string) error {
	var value any
	if purchaseID != nil {
		value = *purchaseID
	}
	return mutation.Exec(ctx, s.runner, mutation.Op[struct{}]{
		Entity: "purchase",
		Name:   op,
		ID:     inventoryID,
		Optimistic: []mutation.Target{mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
			mutation.ReplaceByID[domain.InventoryView]{ID: inventoryID, Replace: func(v domain.InventoryView) domain.InventoryView {
				v.PurchaseID = purchaseID
				v.PurchaseSeller = seller
				return v
			}})},
		Remote: func(ctx context.Context) (struct{}, error) {
			_, err := s.remote.Update(ctx, "inventory", inventoryID, remote.Row{"purchase_id": value})
			return struct{}{}, err
		},
		Post: func(struct{}) []mutation.Target {
			now := time.Now()
			return []mutation.Target{mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
				mutation.ReplaceByID[domain.InventoryView]{ID: inventoryID, Replace: func(v domain.InventoryView) domain.InventoryView {
					return touchInventory(v, now)
				}})}
		},
		Refetch: []cache.Key{s.cols.Purchases.Key()},
	})
}

// patchSeller keeps the seller shown on inventory rows in step with the purchase.
func (s *PurchaseService) patchSeller(id int64, changes remote.Row) []mutation.Target {
	v, ok := changes["seller_name"]
	if !ok {
		return nil
	}
	var seller *string
	if name, ok := v.(string); ok {
		seller = &name
	}
	return []mutation.Target{mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
		mutation.Transform[domain.InventoryView]{Fn: func(items []domain.InventoryView) []domain.InventoryView {
			out := make([]domain.InventoryView, len(items))
			for i, it := range items {
				if it.PurchaseID != nil && *it.PurchaseID == id {
					it.PurchaseSeller = seller
				}
				out[i] = it
			}
			return out
		}})}
}

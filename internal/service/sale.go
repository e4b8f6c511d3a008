package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/pipeline"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

const saleItemsTable = "sale_items"

// Sale steps. A failure after the first step of a sale operation leaves the store
// half written; the affected collections are reloaded instead of rolled back.
const (
	StepInsertSaleItem  = "insert sale item"
	StepLinkItem        = "link item"
	StepFinalizeSale    = "finalize sale"
	StepMarkItemsSold   = "mark items sold"
	StepUnlinkItems     = "unlink items"
	StepDeleteSaleItems = "delete sale items"
	StepDeleteSale      = "delete sale"
)

// SaleService manages sales and the items reserved or sold in them.
type SaleService struct {
	*mutation.Service[domain.SaleView, domain.SaleDraft]
	cols      Collections
	inventory *InventoryService
	lifecycle *lifecycle.Controller
	remote    remote.Store
	runner    *mutation.Runner
	logger    *slog.Logger
}

// NewSaleService creates a SaleService.
func NewSaleService(
	runner *mutation.Runner,
	store remote.Store,
	v *validation.Validator,
	cols Collections,
	inventory *InventoryService,
	ctrl *lifecycle.Controller,
	logger *slog.Logger,
) *SaleService {
	v.SetMessage("sale_status", "valid", "Sale status must be Reserved or Finalized")
	v.SetMessage("sale_date", "datetime", "Sale date must be a date (YYYY-MM-DD)")

	s := &SaleService{
		cols:      cols,
		inventory: inventory,
		lifecycle: ctrl,
		remote:    store,
		runner:    runner,
		logger:    logger.With("component", "sales"),
	}
	s.Service = mutation.NewService(runner, store, v, mutation.Entity[domain.SaleView, domain.SaleDraft]{
		Name:     "sale",
		Table:    "sales",
		Key:      cols.Sales.Key(),
		IDColumn: "sale_id",
		IDOf:     idOfSale,
		Draft: func(d domain.SaleDraft, now time.Time) domain.SaleView {
			return domain.SaleView{
				SaleID:    domain.DraftID,
				Buyer:     d.Buyer,
				Status:    d.Status,
				Date:      d.Date,
				Notes:     d.Notes,
				CreatedAt: now,
				UpdatedAt: now,
			}
		},
		Prepend: true,
		Columns: []string{"buyer_name", "sale_date", "sale_notes"},
		ChangeRules: map[string]string{
			"sale_date": "omitempty,datetime=2006-01-02",
		},
		Related: s.patchBuyer,
		Touch: func(v domain.SaleView, now time.Time) domain.SaleView {
			v.UpdatedAt = now
			v.SecondsAgo = 0
			return v
		},
	})
	return s
}

// Create validates and creates a sale.
func (s *SaleService) Create(ctx context.Context, draft domain.SaleDraft, opts ...mutation.Option) (domain.Sale, error) {
	if draft.Status == "" {
		draft.Status = domain.SaleReserved
	}
	return mutation.Decoded[domain.Sale](s.Service.Create(ctx, draft, opts...))
}

// Update changes the buyer, date or notes of a sale. The status changes through
// Finalize only.
func (s *SaleService) Update(ctx context.Context, id int64, changes remote.Row, opts ...mutation.Option) (domain.Sale, error) {
	if _, ok := changes["sale_status"]; ok {
		return domain.Sale{}, domainerrors.ValidationWithDetails("validation failed: sale_status is managed by Finalize",
			map[string]string{"sale_status": "Finalize the sale to change its status"})
	}
	return mutation.Decoded[domain.Sale](s.Service.Update(ctx, id, changes, opts...))
}

// Get returns a sale, from the cache when it is loaded.
func (s *SaleService) Get(ctx context.Context, id int64) (domain.SaleView, error) {
	if v, ok := s.Find(id); ok {
		return v, nil
	}
	rows, err := s.remote.Select(ctx, "view_sales", remote.Where(remote.Eq("sale_id", id)))
	if err != nil {
		return domain.SaleView{}, mutation.Classify(err)
	}
	if len(rows) == 0 {
		return domain.SaleView{}, domainerrors.NotFoundf("sale %d not found", id)
	}
	return remote.Decode[domain.SaleView](rows[0])
}

// Items returns the sale items of a sale.
func (s *SaleService) Items(ctx context.Context, id int64) ([]domain.SaleItem, error) {
	rows, err := s.remote.Select(ctx, saleItemsTable, remote.Where(remote.Eq("sale_id", id)).OrderBy("id", false))
	if err != nil {
		return nil, mutation.Classify(err)
	}
	return remote.DecodeAll[domain.SaleItem](rows)
}

// AddItem reserves an item that is up for sale in a sale. The sold price defaults
// to the item's override price.
func (s *SaleService) AddItem(ctx context.Context, saleID, inventoryID int64, price decimal.NullDecimal) (domain.SaleItem, error) {
	if domain.IsDraftID(saleID) || domain.IsDraftID(inventoryID) {
		return domain.SaleItem{}, domainerrors.Conflict("sale or item is still being saved")
	}
	sale, err := s.Get(ctx, saleID)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if sale.Status == domain.SaleFinalized {
		return domain.SaleItem{}, domainerrors.IllegalTransitionf("cannot add items to a finalized sale")
	}
	item, err := s.inventory.Get(ctx, inventoryID)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if item.IsConnectedToSale() {
		return domain.SaleItem{}, domainerrors.Conflict("Item is already linked to a sale")
	}
	if item.Status != domain.StatusForSale {
		return domain.SaleItem{}, domainerrors.IllegalTransitionf("only items that are %s can be added to a sale", domain.StatusForSale)
	}

	sold := decimal.Zero
	switch {
	case price.Valid:
		sold = price.Decimal
	case item.OverridePrice.Valid:
		sold = item.OverridePrice.Decimal
	}
	if sold.IsNegative() {
		return domain.SaleItem{}, domainerrors.ValidationWithDetails("validation failed: negative price",
			map[string]string{"sold_price": "Price cannot be negative"})
	}

	var inserted remote.Row
	row, err := mutation.Run(ctx, s.runner, mutation.Op[remote.Row]{
		Entity: "sale",
		Name:   "add_item",
		ID:     saleID,
		Optimistic: []mutation.Target{
			mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
				mutation.ReplaceByID[domain.InventoryView]{ID: inventoryID, Replace: func(v domain.InventoryView) domain.InventoryView {
					status := sale.Status
					v.SaleID = &saleID
					v.SaleStatus = &status
					v.SaleBuyer = sale.Buyer
					return v
				}}),
			mutation.On[domain.SaleView](s.cols.Sales.Key(), idOfSale,
				mutation.ReplaceByID[domain.SaleView]{ID: saleID, Replace: func(v domain.SaleView) domain.SaleView {
					v.ItemCount++
					v.Total = v.Total.Add(sold)
					return v
				}}),
		},
		Remote: func(ctx context.Context) (remote.Row, error) {
			err := pipeline.Run(ctx,
				pipeline.Step{Name: StepInsertSaleItem, Run: func(ctx context.Context) error {
					var err error
					inserted, err = s.remote.Insert(ctx, saleItemsTable, remote.Row{
						"sale_id":      saleID,
						"inventory_id": inventoryID,
						"sold_price":   sold.StringFixed(2),
					})
					return err
				}},
				pipeline.Step{Name: StepLinkItem, Run: func(ctx context.Context) error {
					_, err := s.remote.Update(ctx, "inventory", inventoryID, remote.Row{"sale_id": saleID})
					return err
				}},
			)
			return inserted, incomplete(err, StepInsertSaleItem,
				"The sale item was saved but the item could not be linked to the sale. Sales and inventory have been reloaded.")
		},
		Refetch: []cache.Key{s.cols.Sales.Key()},
		Success: item.Title + " added to sale",
	})
	if err != nil {
		return domain.SaleItem{}, s.recoverSaga(ctx, err, "add_item", saleID)
	}
	return mutation.Decoded[domain.SaleItem](row, nil)
}

// RemoveItem takes an item out of a sale and puts it back up for sale.
func (s *SaleService) RemoveItem(ctx context.Context, saleID, inventoryID int64) error {
	item, err := s.inventory.Get(ctx, inventoryID)
	if err != nil {
		return err
	}
	if item.SaleID == nil || *item.SaleID != saleID {
		return domainerrors.NotFoundf("item %d is not part of sale %d", inventoryID, saleID)
	}
	_, err = s.lifecycle.Apply(ctx, inventoryID, domain.StatusForSale)
	return err
}

// Finalize closes a reserved sale: the sale becomes Finalized and its items Sold.
// Finalizing a finalized sale does nothing.
func (s *SaleService) Finalize(ctx context.Context, id int64) error {
	if domain.IsDraftID(id) {
		return domainerrors.Conflict("sale is still being saved")
	}
	sale, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sale.Status == domain.SaleFinalized {
		return nil
	}
	finalized := domain.SaleFinalized

	err = mutation.Exec(ctx, s.runner, mutation.Op[struct{}]{
		Entity: "sale",
		Name:   "finalize",
		ID:     id,
		Optimistic: []mutation.Target{
			mutation.On[domain.SaleView](s.cols.Sales.Key(), idOfSale,
				mutation.ReplaceByID[domain.SaleView]{ID: id, Replace: func(v domain.SaleView) domain.SaleView {
					v.Status = finalized
					return v
				}}),
			s.patchSaleItems(id, func(v domain.InventoryView) domain.InventoryView {
				v.Status = domain.StatusSold
				v.SaleStatus = &finalized
				return v
			}),
		},
		Remote: func(ctx context.Context) (struct{}, error) {
			err := pipeline.Run(ctx,
				pipeline.Step{Name: StepFinalizeSale, Run: func(ctx context.Context) error {
					_, err := s.remote.Update(ctx, "sales", id, remote.Row{"sale_status": string(finalized)})
					return err
				}},
				pipeline.Step{Name: StepMarkItemsSold, Run: func(ctx context.Context) error {
					_, err := s.remote.UpdateWhere(ctx, "inventory", remote.Row{"sale_id": id},
						remote.Row{"inventory_status": string(domain.StatusSold)})
					return err
				}},
			)
			return struct{}{}, incomplete(err, StepFinalizeSale,
				"The sale was finalized but its items could not be marked as sold. Sales and inventory have been reloaded.")
		},
		Refetch: []cache.Key{s.cols.Sales.Key(), s.cols.Inventory.Key()},
		Success: "Sale finalized",
	})
	return s.recoverSaga(ctx, err, "finalize", id)
}

// Delete removes a reserved sale. Its items go back up for sale.
func (s *SaleService) Delete(ctx context.Context, id int64, opts ...mutation.Option) error {
	if domain.IsDraftID(id) {
		return domainerrors.Conflict("sale is still being saved")
	}
	sale, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sale.Status == domain.SaleFinalized {
		return domainerrors.Conflict("Cannot delete a finalized sale")
	}

	err = mutation.Exec(ctx, s.runner, mutation.Op[struct{}]{
		Entity:     "sale",
		Name:       "delete",
		ID:         id,
		Optimistic: []mutation.Target{mutation.On[domain.SaleView](s.cols.Sales.Key(), idOfSale, mutation.RemoveByID(id, idOfSale)), s.unlinkItems(id)},
		Remote: func(ctx context.Context) (struct{}, error) {
			err := pipeline.Run(ctx,
				pipeline.Step{Name: StepUnlinkItems, Run: func(ctx context.Context) error {
					_, err := s.remote.UpdateWhere(ctx, "inventory", remote.Row{"sale_id": id}, remote.Row{
						"sale_id":          nil,
						"inventory_status": string(domain.StatusForSale),
					})
					return err
				}},
				pipeline.Step{Name: StepDeleteSaleItems, Run: func(ctx context.Context) error {
					_, err := s.remote.DeleteWhere(ctx, saleItemsTable, remote.Row{"sale_id": id})
					return err
				}},
				pipeline.Step{Name: StepDeleteSale, Run: func(ctx context.Context) error {
					return s.remote.Delete(ctx, "sales", id)
				}},
			)
			return struct{}{}, incomplete(err, StepUnlinkItems,
				"The items were taken out of the sale but the sale could not be deleted. Sales and inventory have been reloaded.")
		},
		Refetch:    []cache.Key{s.cols.Sales.Key()},
		Background: mutation.IsBackground(opts...),
		Success:    "Sale deleted",
	})
	return s.recoverSaga(ctx, err, "delete", id)
}

func (s *SaleService) unlinkItems(id int64) mutation.Target {
	return s.patchSaleItems(id, func(v domain.InventoryView) domain.InventoryView {
		v.SaleID = nil
		v.SaleStatus = nil
		v.SaleBuyer = nil
		v.Status = domain.StatusForSale
		return v
	})
}

// patchSaleItems applies fn to every cached inventory row linked to a sale.
func (s *SaleService) patchSaleItems(id int64, fn func(domain.InventoryView) domain.InventoryView) mutation.Target {
	return mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
		mutation.Transform[domain.InventoryView]{Fn: func(items []domain.InventoryView) []domain.InventoryView {
			out := make([]domain.InventoryView, len(items))
			for i, it := range items {
				if it.SaleID != nil && *it.SaleID == id {
					it = fn(it)
				}
				out[i] = it
			}
			return out
		}})
}

// patchBuyer keeps the buyer shown on inventory rows in step with the sale.
func (s *SaleService) patchBuyer(id int64, changes remote.Row) []mutation.Target {
	v, ok := changes["buyer_name"]
	if !ok {
		return nil
	}
	var buyer *string
	if name, ok := v.(string); ok {
		buyer = &name
	}
	return []mutation.Target{s.patchSaleItems(id, func(it domain.InventoryView) domain.InventoryView {
		it.SaleBuyer = buyer
		return it
	})}
}

// incomplete turns a failure after the first step into SAGA_INCOMPLETE.
func incomplete(err error, first, msg string) error {
	if err == nil {
		return nil
	}
	if step, ok := pipeline.FailedStep(err); ok && step != first {
		return domainerrors.SagaIncomplete(msg, err)
	}
	return err
}

// recoverSaga reloads sales and inventory after a half-written sale operation. The
// optimistic patches were undone, which may not match the store any more.
func (s *SaleService) recoverSaga(ctx context.Context, err error, op string, id int64) error {
	if domainerrors.CodeOf(err) != domainerrors.CodeSagaIncomplete {
		return err
	}
	s.logger.Error("sale operation stopped halfway, reloading", "op", op, "sale_id", id, "error", err)
	s.runner.Emitter().Emit(events.New(events.EventSagaIncomplete, events.MutationEventData{
		Entity: "sale", Op: op, ID: id, Error: err.Error(),
	}))
	for _, key := range []cache.Key{s.cols.Sales.Key(), s.cols.Inventory.Key()} {
		if rerr := s.runner.Cache().Refetch(ctx, key); rerr != nil {
			s.logger.Warn("refetch failed", "key", key, "error", rerr)
		}
	}
	return err
}

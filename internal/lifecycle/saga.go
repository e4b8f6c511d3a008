package lifecycle

import (
	"context"
	"time"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/pipeline"
	"github.com/collectr/collectr/internal/remote"
)

// Remove-from-sale steps.
const (
	StepDeleteSaleItem = "delete sale item"
	StepClearSaleLink  = "clear sale link"
)

// removeFromSale detaches item from its sale. The cache shows the final state
// (For Sale, no sale) while two writes run: the sale item is deleted, then the
// inventory row is unlinked. If the second write fails after the first
// succeeded there is no safe way back, so the inventory collection is reloaded
// from the store instead.
func (c *Controller) removeFromSale(ctx context.Context, item domain.InventoryView) error {
	id, saleID := item.InventoryID, *item.SaleID

	err := mutation.Exec(ctx, c.runner, mutation.Op[struct{}]{
		Entity: "inventory",
		Name:   "remove_from_sale",
		ID:     id,
		Optimistic: []mutation.Target{mutation.On[domain.InventoryView](c.inventory.Key(), inventoryID,
			mutation.ReplaceByID[domain.InventoryView]{ID: id, Replace: func(v domain.InventoryView) domain.InventoryView {
				v.Status = domain.StatusForSale
				v.SaleID = nil
				v.SaleStatus = nil
				v.SaleBuyer = nil
				return v
			}})},
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.detach(ctx, id, saleID)
		},
		Post: func(struct{}) []mutation.Target {
			now := time.Now()
			return []mutation.Target{mutation.On[domain.InventoryView](c.inventory.Key(), inventoryID,
				mutation.ReplaceByID[domain.InventoryView]{ID: id, Replace: func(v domain.InventoryView) domain.InventoryView {
					return touch(v, now)
				}})}
		},
		Refetch: c.refetch,
		Success: item.Title + " removed from sale",
	})
	if domainerrors.CodeOf(err) != domainerrors.CodeSagaIncomplete {
		return err
	}

	c.logger.Error("remove from sale stopped halfway, reloading inventory",
		"inventory_id", id, "sale_id", saleID, "error", err)
	c.emitter.Emit(events.New(events.EventSagaIncomplete, events.StatusEventData{
		InventoryID: id,
		From:        string(item.Status),
		To:          string(domain.StatusForSale),
		SaleID:      &saleID,
	}))
	if rerr := c.inventory.Refetch(ctx); rerr != nil {
		c.logger.Error("reload after incomplete remove from sale failed", "error", rerr)
	}
	for _, key := range c.refetch {
		if rerr := c.runner.Cache().Refetch(ctx, key); rerr != nil {
			c.logger.Warn("refetch failed", "key", key, "error", rerr)
		}
	}
	return err
}

// detach runs the two writes in order.
func (c *Controller) detach(ctx context.Context, inventoryID, saleID int64) error {
	err := pipeline.Run(ctx,
		pipeline.Step{Name: StepDeleteSaleItem, Run: func(ctx context.Context) error {
			_, err := c.remote.DeleteWhere(ctx, "sale_items", remote.Row{"sale_id": saleID, "inventory_id": inventoryID})
			return err
		}},
		pipeline.Step{Name: StepClearSaleLink, Run: func(ctx context.Context) error {
			_, err := c.remote.Update(ctx, "inventory", inventoryID, remote.Row{
				"sale_id":          nil,
				"inventory_status": string(domain.StatusForSale),
			})
			return err
		}},
	)
	if err == nil {
		return nil
	}
	if step, _ := pipeline.FailedStep(err); step == StepClearSaleLink {
		return domainerrors.SagaIncomplete(
			"The item was removed from the sale but its status could not be saved. It has been reloaded.", err)
	}
	return err
}

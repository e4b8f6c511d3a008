package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/remote"
)

// Kind says what a transition does.
type Kind string

// Transition kinds.
const (
	// KindNoop leaves the item as it is.
	KindNoop Kind = "noop"
	// KindUpdate changes the status only.
	KindUpdate Kind = "update"
	// KindRemoveFromSale detaches the item from its sale and puts it back up for sale.
	KindRemoveFromSale Kind = "remove_from_sale"
)

// Plan is the evaluated effect of moving an item to a status.
type Plan struct {
	Kind        Kind                   `json:"kind"`
	InventoryID int64                  `json:"inventory_id"`
	From        domain.InventoryStatus `json:"from"`
	To          domain.InventoryStatus `json:"to"`
	SaleID      *int64                 `json:"sale_id,omitempty"`
}

// Controller applies status transitions to inventory items.
type Controller struct {
	matrix    *Matrix
	runner    *mutation.Runner
	remote    remote.Store
	inventory cache.Collection[domain.InventoryView]
	refetch   []cache.Key
	logger    *slog.Logger
	metrics   *metrics.Metrics
	emitter   events.Emitter
}

// NewController creates a controller. Transitions patch inventory optimistically;
// the keys in refetch (sales, purchases) are reloaded after a sale is touched.
func NewController(
	matrix *Matrix,
	runner *mutation.Runner,
	store remote.Store,
	inventory cache.Collection[domain.InventoryView],
	refetch []cache.Key,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		matrix:    matrix,
		runner:    runner,
		remote:    store,
		inventory: inventory,
		refetch:   refetch,
		logger:    logger.With("component", "lifecycle"),
		metrics:   m,
		emitter:   runner.Emitter(),
	}
}

// Matrix returns the transition matrix.
func (c *Controller) Matrix() *Matrix { return c.matrix }

// IsTransitionAllowed reports whether the matrix allows moving from one status to
// another. It does not look at the item; Evaluate does.
func (c *Controller) IsTransitionAllowed(from, to domain.InventoryStatus) bool {
	return c.matrix.Allowed(from, to)
}

// Evaluate decides what moving item to status to means, or why it is not allowed.
//
// Moving an item that is linked to a sale to For Sale removes it from the sale.
// Any other target is refused while the link exists, and a sold item can only
// come back while its sale is still reserved. Moving an item to the status it
// already has does nothing.
func (c *Controller) Evaluate(item domain.InventoryView, to domain.InventoryStatus) (Plan, error) {
	plan := Plan{Kind: KindNoop, InventoryID: item.InventoryID, From: item.Status, To: to, SaleID: item.SaleID}

	if !to.Valid() {
		return plan, domainerrors.Validationf("validation failed: %q is not an inventory status", to)
	}
	if domain.IsDraftID(item.InventoryID) {
		return plan, domainerrors.Conflict("inventory item is still being saved")
	}

	if item.Status == to && !(item.IsConnectedToSale() && to == domain.StatusForSale) {
		return plan, nil
	}

	if item.IsConnectedToSale() {
		if to != domain.StatusForSale {
			return plan, domainerrors.IllegalTransitionf(
				"item is linked to a sale and can only be moved to %s", domain.StatusForSale)
		}
		if item.Status == domain.StatusSold && !saleIs(item, domain.SaleReserved) {
			return plan, domainerrors.IllegalTransitionf("item belongs to a finalized sale")
		}
		plan.Kind = KindRemoveFromSale
		return plan, nil
	}

	if to == domain.StatusSold {
		return plan, domainerrors.IllegalTransitionf("an item can only be %s through a sale", domain.StatusSold)
	}

	rule, ok := c.matrix.Rule(item.Status, to)
	if !ok {
		return plan, domainerrors.IllegalTransitionf("cannot move item from %s to %s", item.Status, to)
	}
	if rule.RequiresSaleStatus != nil && !saleIs(item, *rule.RequiresSaleStatus) {
		return plan, domainerrors.IllegalTransitionf("moving from %s to %s requires a %s sale",
			item.Status, to, *rule.RequiresSaleStatus)
	}

	plan.Kind = KindUpdate
	return plan, nil
}

func saleIs(item domain.InventoryView, status domain.SaleStatus) bool {
	return item.SaleStatus != nil && *item.SaleStatus == status
}

// Apply moves the item to status to.
func (c *Controller) Apply(ctx context.Context, inventoryID int64, to domain.InventoryStatus) (Plan, error) {
	return c.apply(ctx, inventoryID, to, "pointer")
}

// ApplyShortcut moves the item to the status bound to key (N, C, F or S, in either
// case).
func (c *Controller) ApplyShortcut(ctx context.Context, inventoryID int64, key rune) (Plan, error) {
	to, ok := domain.StatusForShortcut(key)
	if !ok {
		return Plan{InventoryID: inventoryID, Kind: KindNoop}, domainerrors.Validationf("validation failed: no status is bound to %q", key)
	}
	return c.apply(ctx, inventoryID, to, "keyboard")
}

func (c *Controller) apply(ctx context.Context, inventoryID int64, to domain.InventoryStatus, source string) (Plan, error) {
	log := c.logger.With("inventory_id", inventoryID, "to", to, "source", source)

	item, err := c.item(ctx, inventoryID)
	if err != nil {
		return Plan{InventoryID: inventoryID, To: to, Kind: KindNoop}, err
	}

	plan, err := c.Evaluate(item, to)
	if err != nil {
		c.metrics.ObserveTransition(string(item.Status), string(to), false)
		log.Info("transition refused", "from", item.Status, "reason", err)
		return plan, err
	}

	switch plan.Kind {
	case KindNoop:
		log.Debug("status unchanged")
		return plan, nil
	case KindUpdate:
		err = c.updateStatus(ctx, item, to)
	case KindRemoveFromSale:
		err = c.removeFromSale(ctx, item)
	}

	c.metrics.ObserveTransition(string(plan.From), string(plan.To), err == nil)
	if err != nil {
		return plan, err
	}
	c.emitter.Emit(events.New(events.EventStatusChanged, events.StatusEventData{
		InventoryID: inventoryID,
		From:        string(plan.From),
		To:          string(plan.To),
		SaleID:      plan.SaleID,
	}))
	return plan, nil
}

// item returns the cached row, falling back to the remote view.
func (c *Controller) item(ctx context.Context, id int64) (domain.InventoryView, error) {
	if it, ok := c.inventory.Find(func(v domain.InventoryView) bool { return v.InventoryID == id }); ok {
		return it, nil
	}
	rows, err := c.remote.Select(ctx, "view_inventory", remote.Where(remote.Eq("inventory_id", id)))
	if err != nil {
		return domain.InventoryView{}, mutation.Classify(err)
	}
	if len(rows) == 0 {
		return domain.InventoryView{}, domainerrors.NotFoundf("inventory item %d not found", id)
	}
	return remote.Decode[domain.InventoryView](rows[0])
}

func inventoryID(v domain.InventoryView) int64 { return v.InventoryID }

func touch(v domain.InventoryView, now time.Time) domain.InventoryView {
	v.UpdatedAt = now
	v.UpdatedSecondsAgo = 0
	return v
}

func (c *Controller) updateStatus(ctx context.Context, item domain.InventoryView, to domain.InventoryStatus) error {
	id := item.InventoryID
	return mutation.Exec(ctx, c.runner, mutation.Op[struct{}]{
		Entity: "inventory",
		Name:   "status",
		ID:     id,
		Optimistic: []mutation.Target{mutation.On[domain.InventoryView](c.inventory.Key(), inventoryID,
			mutation.ReplaceByID[domain.InventoryView]{ID: id, Replace: func(v domain.InventoryView) domain.InventoryView {
				v.Status = to
				return v
			}})},
		Remote: func(ctx context.Context) (struct{}, error) {
			_, err := c.remote.Update(ctx, "inventory", id, remote.Row{"inventory_status": string(to)})
			return struct{}{}, err
		},
		Post: func(struct{}) []mutation.Target {
			now := time.Now()
			return []mutation.Target{mutation.On[domain.InventoryView](c.inventory.Key(), inventoryID,
				mutation.ReplaceByID[domain.InventoryView]{ID: id, Replace: func(v domain.InventoryView) domain.InventoryView {
					return touch(v, now)
				}})}
		},
		Success: item.Title + " status updated to " + string(to),
	})
}

package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/remote"
)

const pricesTable = "product_prices"

// PriceService keeps the market prices of products, one per condition.
type PriceService struct {
	runner *mutation.Runner
	remote remote.Store
	logger *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(runner *mutation.Runner, store remote.Store, logger *slog.Logger) *PriceService {
	return &PriceService{runner: runner, remote: store, logger: logger.With("component", "prices")}
}

// Prices returns the stored prices of a product keyed by condition.
func (s *PriceService) Prices(ctx context.Context, productID int64) (map[domain.Condition]domain.ProductPrice, error) {
	rows, err := s.remote.Select(ctx, pricesTable, remote.Where(remote.Eq("product_id", productID)))
	if err != nil {
		return nil, mutation.Classify(err)
	}
	prices, err := remote.DecodeAll[domain.ProductPrice](rows)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "decode prices")
	}
	out := make(map[domain.Condition]domain.ProductPrice, len(prices))
	for _, p := range prices {
		out[p.Condition] = p
	}
	return out, nil
}

// SetPrice stores the price of a product in one condition, replacing the previous
// one. Price refreshes happen in bulk, so failures are only logged.
func (s *PriceService) SetPrice(ctx context.Context, productID int64, cond domain.Condition, price decimal.Decimal) (domain.ProductPrice, error) {
	if !cond.Valid() {
		return domain.ProductPrice{}, domainerrors.ValidationWithDetails("validation failed: unknown condition",
			map[string]string{"price_type": "Condition must be one of loose, cib, new, graded, box or manual"})
	}
	if price.IsNegative() {
		return domain.ProductPrice{}, domainerrors.ValidationWithDetails("validation failed: negative price",
			map[string]string{"price": "Price cannot be negative"})
	}

	row, err := mutation.Run(ctx, s.runner, mutation.Op[remote.Row]{
		Entity: "product_price",
		Name:   "set",
		ID:     productID,
		Remote: func(ctx context.Context) (remote.Row, error) {
			match := remote.Row{"product_id": productID, "price_type": string(cond)}
			updated, err := s.remote.UpdateWhere(ctx, pricesTable, match, remote.Row{"price": price.String()})
			if err != nil {
				return nil, err
			}
			if len(updated) > 0 {
				return updated[0], nil
			}
			return s.remote.Insert(ctx, pricesTable, remote.Row{
				"product_id": productID,
				"price_type": string(cond),
				"price":      price.String(),
			})
		},
		Background: true,
	})
	if err != nil {
		return domain.ProductPrice{}, err
	}
	return mutation.Decoded[domain.ProductPrice](row, nil)
}

// DeletePrice removes the price of a product in one condition. Deleting a price that
// does not exist is not an error.
func (s *PriceService) DeletePrice(ctx context.Context, productID int64, cond domain.Condition) error {
	return mutation.Exec(ctx, s.runner, mutation.Op[struct{}]{
		Entity: "product_price",
		Name:   "delete",
		ID:     productID,
		Remote: func(ctx context.Context) (struct{}, error) {
			_, err := s.remote.DeleteWhere(ctx, pricesTable, remote.Row{"product_id": productID, "price_type": string(cond)})
			return struct{}{}, err
		},
		Background: true,
	})
}

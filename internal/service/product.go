package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/pipeline"
	"github.com/collectr/collectr/internal/relation"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

// MinReleaseYear is the earliest release year a product may have.
const MinReleaseYear = 1970

// Product columns that inventory rows repeat.
var inventoryProductColumns = []string{"product_title", "product_variant", "product_type", "region", "rating"}

// ProductService manages products.
type ProductService struct {
	*mutation.Service[domain.ProductView, domain.ProductDraft]
	cols   Collections
	tags   *TagService
	logger *slog.Logger
}

// NewProductService creates the product service. tags must be the product scope
// tag service.
func NewProductService(
	runner *mutation.Runner,
	store remote.Store,
	v *validation.Validator,
	cols Collections,
	tags *TagService,
	logger *slog.Logger,
) *ProductService {
	yearMsg := fmt.Sprintf("Release year must be between %d and %d", MinReleaseYear, time.Now().Year())
	v.SetMessage("product_title", "required", "Product title is required")
	v.SetMessage("product_type", "required", "Product type is required")
	v.SetMessage("release_year", "gte", yearMsg)
	v.SetMessage("release_year", "pastyear", yearMsg)
	v.SetMessage("region", "required_with", "Region must be selected when a rating is specified")

	s := &ProductService{cols: cols, tags: tags, logger: logger.With("component", "products")}
	s.Service = mutation.NewService(runner, store, v, mutation.Entity[domain.ProductView, domain.ProductDraft]{
		Name:     "product",
		Table:    "products",
		Key:      cols.Products.Key(),
		IDColumn: "product_id",
		IDOf:     idOfProduct,
		Draft:    domain.ProductDraft.DraftView,
		Columns: []string{
			"product_title", "product_variant", "release_year", "product_group", "product_type",
			"region", "rating", "product_notes", "is_active",
		},
		IntColumns: []string{"release_year"},
		ChangeRules: map[string]string{
			"product_title": "required",
			"product_type":  "required",
		},
		Related: s.patchInventory,
		Touch: func(p domain.ProductView, now time.Time) domain.ProductView {
			p.UpdatedAt = now
			p.UpdatedSecondsAgo = 0
			return p
		},
	})
	return s
}

// Create validates and creates a product. The product shows up in the cache as a
// draft row until the store confirms it.
func (s *ProductService) Create(ctx context.Context, draft domain.ProductDraft, opts ...mutation.Option) (domain.Product, error) {
	return mutation.Decoded[domain.Product](s.Service.Create(ctx, draft, opts...))
}

// Update changes a product. Inventory rows of the product are patched too when a
// column they repeat changes.
func (s *ProductService) Update(ctx context.Context, id int64, changes remote.Row, opts ...mutation.Option) (domain.Product, error) {
	current, cached := s.Find(id)
	if err := checkProductChanges(changes, current, cached); err != nil {
		return domain.Product{}, err
	}
	return mutation.Decoded[domain.Product](s.Service.Update(ctx, id, changes, opts...))
}

// UpdateWithTags updates the product and then applies the pending changes of its
// tag selector. The tags are only written once the product update succeeded.
func (s *ProductService) UpdateWithTags(ctx context.Context, id int64, changes remote.Row, tags *relation.Selector) error {
	if tags != nil && tags.EntityID() != id {
		return domainerrors.Validationf("validation failed: tag selector belongs to product %d", tags.EntityID())
	}
	return pipeline.Run(ctx,
		pipeline.When(len(changes) > 0, pipeline.Step{Name: "update product", Run: func(ctx context.Context) error {
			_, err := s.Update(ctx, id, changes)
			return err
		}}),
		pipeline.When(tags != nil && tags.HasChanges(), pipeline.Step{Name: "apply tags", Run: tags.ApplyChanges}),
	)
}

// Tags opens the tag selector of a product.
func (s *ProductService) Tags(ctx context.Context, id int64) (*relation.Selector, error) {
	return s.tags.Selector(ctx, id)
}

func (s *ProductService) patchInventory(id int64, changes remote.Row) []mutation.Target {
	repeated := remote.Row{}
	for _, col := range inventoryProductColumns {
		if v, ok := changes[col]; ok {
			repeated[col] = v
		}
	}
	if len(repeated) == 0 {
		return nil
	}
	return []mutation.Target{mutation.On[domain.InventoryView](s.cols.Inventory.Key(), idOfInventory,
		mutation.Transform[domain.InventoryView]{Fn: func(items []domain.InventoryView) []domain.InventoryView {
			out := make([]domain.InventoryView, len(items))
			for i, it := range items {
				if it.ProductID == id {
					it = mutation.Merge(it, repeated)
				}
				out[i] = it
			}
			return out
		}})}
}

// checkProductChanges applies the rules validator tags cannot express on a
// loosely typed patch.
func checkProductChanges(changes remote.Row, current domain.ProductView, cached bool) error {
	fields := map[string]string{}

	if v, ok := changes["release_year"]; ok && v != nil {
		year, isInt := changes.Int("release_year")
		if !isInt || year < MinReleaseYear || year > int64(time.Now().Year()) {
			fields["release_year"] = fmt.Sprintf("Release year must be between %d and %d", MinReleaseYear, time.Now().Year())
		}
	}

	rating, ratingSet := changes["rating"]
	region, regionSet := changes["region"]
	hasRating := ratingSet && !blank(rating) || !ratingSet && cached && current.Rating != nil && *current.Rating != ""
	hasRegion := regionSet && !blank(region) || !regionSet && cached && current.Region != nil && *current.Region != ""
	if (ratingSet || regionSet) && hasRating && !hasRegion {
		fields["region"] = "Region must be selected when a rating is specified"
	}

	if len(fields) == 0 {
		return nil
	}
	var parts []string
	for _, f := range []string{"release_year", "region"} {
		if m, ok := fields[f]; ok {
			parts = append(parts, m)
		}
	}
	return domainerrors.ValidationWithDetails("validation failed: "+strings.Join(parts, "; "), fields)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

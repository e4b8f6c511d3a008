package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/table"
)

func (s *Server) registerProductRoutes() {
	register(s.api, huma.Operation{
		OperationID: "listProducts",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "List products",
		Description: "Returns one page of the products table with facet counts",
		Tags:        []string{"Products"},
	}, s.handleListProducts)

	register(s.api, huma.Operation{
		OperationID:   "createProduct",
		Method:        http.MethodPost,
		Path:          "/api/v1/products",
		Summary:       "Create product",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateProduct)

	register(s.api, huma.Operation{
		OperationID: "updateProduct",
		Method:      http.MethodPatch,
		Path:        "/api/v1/products/{id}",
		Summary:     "Update product",
		Description: "Changes the given columns; inventory rows of the product follow",
		Tags:        []string{"Products"},
	}, s.handleUpdateProduct)

	register(s.api, huma.Operation{
		OperationID: "getProductTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/tags",
		Summary:     "Get product tags",
		Tags:        []string{"Products", "Tags"},
	}, s.handleGetProductTags)

	register(s.api, huma.Operation{
		OperationID: "setProductTags",
		Method:      http.MethodPut,
		Path:        "/api/v1/products/{id}/tags",
		Summary:     "Set product tags",
		Description: "Sends the minimal set of edge changes that turns the stored tags into the given ones",
		Tags:        []string{"Products", "Tags"},
	}, s.handleSetProductTags)

	register(s.api, huma.Operation{
		OperationID: "listProductPrices",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/prices",
		Summary:     "List product prices",
		Tags:        []string{"Products"},
	}, s.handleListPrices)

	register(s.api, huma.Operation{
		OperationID: "setProductPrice",
		Method:      http.MethodPut,
		Path:        "/api/v1/products/{id}/prices/{condition}",
		Summary:     "Set product price",
		Tags:        []string{"Products"},
	}, s.handleSetPrice)

	register(s.api, huma.Operation{
		OperationID:   "deleteProductPrice",
		Method:        http.MethodDelete,
		Path:          "/api/v1/products/{id}/prices/{condition}",
		Summary:       "Delete product price",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeletePrice)
}

// === DTOs ===

// ListProductsInput contains the table parameters for products.
type ListProductsInput struct {
	TableInput
}

// ProductsOutput wraps a products page for Huma.
type ProductsOutput struct {
	Body table.View[domain.ProductView]
}

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Title       string  `json:"product_title,omitempty" doc:"Product title"`
	Variant     *string `json:"product_variant,omitempty" doc:"Edition or variant"`
	ReleaseYear *int    `json:"release_year,omitempty" doc:"Release year"`
	Group       *string `json:"product_group,omitempty" doc:"Product group"`
	Type        string  `json:"product_type,omitempty" doc:"Product type"`
	Region      *string `json:"region,omitempty" doc:"Region; required with a rating"`
	Rating      *string `json:"rating,omitempty" doc:"Age rating"`
	Notes       *string `json:"product_notes,omitempty" doc:"Notes"`
	IsActive    bool    `json:"is_active,omitempty" doc:"Whether the product is active"`
}

// CreateProductInput wraps the create product request for Huma.
type CreateProductInput struct {
	Body CreateProductRequest
}

// ProductOutput wraps a product for Huma.
type ProductOutput struct {
	Body domain.Product
}

// PricesOutput wraps the prices of a product for Huma.
type PricesOutput struct {
	Body map[domain.Condition]domain.ProductPrice
}

// SetPriceRequest is the request body for setting a price.
type SetPriceRequest struct {
	Price string `json:"price" doc:"Price as a decimal string"`
}

// SetPriceInput wraps the set price request for Huma.
type SetPriceInput struct {
	ID        int64  `path:"id" minimum:"1" doc:"Product ID"`
	Condition string `path:"condition" doc:"Price condition"`
	Body      SetPriceRequest
}

// PriceInput identifies one price of a product.
type PriceInput struct {
	ID        int64  `path:"id" minimum:"1" doc:"Product ID"`
	Condition string `path:"condition" doc:"Price condition"`
}

// PriceOutput wraps a price for Huma.
type PriceOutput struct {
	Body domain.ProductPrice
}

// === Handlers ===

func (s *Server) handleListProducts(ctx context.Context, input *ListProductsInput) (*ProductsOutput, error) {
	st, err := state(s.productsTable, input.TableInput, "product_title")
	if err != nil {
		return nil, err
	}
	items, err := s.services.Collections.Products.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	return &ProductsOutput{Body: s.productsTable.Derive(items, st)}, nil
}

func (s *Server) handleCreateProduct(ctx context.Context, input *CreateProductInput) (*ProductOutput, error) {
	b := input.Body
	p, err := s.services.Products.Create(ctx, domain.ProductDraft{
		Title:       b.Title,
		Variant:     b.Variant,
		ReleaseYear: b.ReleaseYear,
		Group:       b.Group,
		Type:        b.Type,
		Region:      b.Region,
		Rating:      b.Rating,
		Notes:       b.Notes,
		IsActive:    b.IsActive,
	})
	if err != nil {
		return nil, err
	}
	return &ProductOutput{Body: p}, nil
}

func (s *Server) handleUpdateProduct(ctx context.Context, input *PatchInput) (*ProductOutput, error) {
	p, err := s.services.Products.Update(ctx, input.ID, changesOf(input.Body))
	if err != nil {
		return nil, err
	}
	return &ProductOutput{Body: p}, nil
}

func (s *Server) handleGetProductTags(ctx context.Context, input *IDInput) (*TagsOutput, error) {
	return getTags(ctx, s.services.ProductTags, input.ID)
}

func (s *Server) handleSetProductTags(ctx context.Context, input *SetTagsInput) (*TagsOutput, error) {
	return setTags(ctx, s.services.ProductTags, input.ID, input.Body.Tags)
}

func (s *Server) handleListPrices(ctx context.Context, input *IDInput) (*PricesOutput, error) {
	prices, err := s.services.Prices.Prices(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &PricesOutput{Body: prices}, nil
}

func (s *Server) handleSetPrice(ctx context.Context, input *SetPriceInput) (*PriceOutput, error) {
	price, err := parseMoney("price", input.Body.Price)
	if err != nil {
		return nil, err
	}
	p, err := s.services.Prices.SetPrice(ctx, input.ID, domain.Condition(input.Condition), price.Decimal)
	if err != nil {
		return nil, err
	}
	return &PriceOutput{Body: p}, nil
}

func (s *Server) handleDeletePrice(ctx context.Context, input *PriceInput) (*struct{}, error) {
	if err := s.services.Prices.DeletePrice(ctx, input.ID, domain.Condition(input.Condition)); err != nil {
		return nil, err
	}
	return nil, nil
}

// parseMoney parses an optional decimal amount. An empty string is no amount.
func parseMoney(field, v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, domainerrors.ValidationWithDetails("validation failed: "+field+" is not a number",
			map[string]string{field: "Must be a decimal amount"})
	}
	return decimal.NewNullDecimal(d), nil
}

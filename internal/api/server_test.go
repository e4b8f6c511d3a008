package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/ratelimit"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/remote/sqlstore"
	"github.com/collectr/collectr/internal/service"
	"github.com/collectr/collectr/internal/validation"
)

// testServer wraps the API server with direct access to the remote store.
type testServer struct {
	*Server
	api humatest.TestAPI
	db  *sqlstore.Store
}

// testEnvelope is the success envelope with typed data.
type testEnvelope[T any] struct {
	Version int  `json:"v"`
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

func setupTestServer(t *testing.T, limiter *ratelimit.KeyedRateLimiter) *testServer {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard().Logger

	db, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	manager := events.NewManager(log)
	c := cache.New(db, cache.Options{Logger: log, Emitter: manager})
	cols := service.RegisterCollections(c)
	runner := mutation.NewRunner(c, log, nil, manager, mutation.RetryPolicy{})
	v := validation.New()

	matrix, err := lifecycle.LoadMatrix(ctx, db)
	require.NoError(t, err)
	ctrl := lifecycle.NewController(matrix, runner, db, cols.Inventory,
		[]cache.Key{service.KeySales, service.KeyPurchases}, log, nil)

	productTags := service.NewTagService(domain.ScopeProduct, runner, db, v, cols, nil, log)
	inventoryTags := service.NewTagService(domain.ScopeInventory, runner, db, v, cols, nil, log)
	inventory := service.NewInventoryService(runner, db, v, cols, inventoryTags, ctrl, log)

	services := &Services{
		Collections:    cols,
		Products:       service.NewProductService(runner, db, v, cols, productTags, log),
		Prices:         service.NewPriceService(runner, db, log),
		Inventory:      inventory,
		Purchases:      service.NewPurchaseService(runner, db, v, cols, log),
		Sales:          service.NewSaleService(runner, db, v, cols, inventory, ctrl, log),
		ProductTags:    productTags,
		InventoryTags:  inventoryTags,
		Lifecycle:      ctrl,
		InventoryTable: service.InventoryTable(),
		ProductsTable:  service.ProductsTable(),
	}

	s := NewServer(services, Options{Store: db, Events: manager, WriteLimiter: limiter}, log)
	return &testServer{Server: s, api: humatest.Wrap(t, s.API()), db: db}
}

func (ts *testServer) insert(t *testing.T, table string, row remote.Row) int64 {
	t.Helper()
	out, err := ts.db.Insert(context.Background(), table, row)
	require.NoError(t, err)
	id, ok := out.ID()
	require.True(t, ok)
	return id
}

func (ts *testServer) item(t *testing.T, title string, status domain.InventoryStatus) int64 {
	t.Helper()
	productID := ts.insert(t, "products", remote.Row{"product_title": title, "product_type": "Game"})
	return ts.insert(t, "inventory", remote.Row{"product_id": productID, "inventory_status": string(status)})
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.True(t, env.Success)
	return env.Data
}

func decodeError(t *testing.T, body []byte) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	assert.False(t, env.Success)
	return env
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["remote"].Status)
	assert.Equal(t, "no subscribers", health.Components["events"].Message)
}

func TestCreateProduct(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Post("/api/v1/products", map[string]any{
		"product_title": "Zelda",
		"product_type":  "Game",
		"is_active":     true,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	p := decode[domain.Product](t, resp.Body.Bytes())
	assert.Positive(t, p.ID)
	assert.Equal(t, "Zelda", p.Title)
}

func TestCreateProduct_Validation(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Post("/api/v1/products", map[string]any{"product_type": "Game"})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	env := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Code)
	details, ok := env.Details.(map[string]any)
	require.True(t, ok, "details are %T", env.Details)
	assert.Equal(t, "Product title is required", details["product_title"])
}

func TestUpdateProduct_NotFound(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Patch("/api/v1/products/999", map[string]any{"product_title": "Nothing"})
	assert.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body.Bytes()).Code)
}

func TestUpdateProduct_ReadOnlyColumns(t *testing.T) {
	ts := setupTestServer(t, nil)
	id := ts.insert(t, "products", remote.Row{"product_title": "Zelda", "product_type": "Game"})
	path := "/api/v1/products/" + strconv.FormatInt(id, 10)

	resp := ts.api.Patch(path, map[string]any{"id": 9999, "created_at": "2001-01-01T00:00:00Z"})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	env := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Code)
	details, ok := env.Details.(map[string]any)
	require.True(t, ok, "details are %T", env.Details)
	assert.Contains(t, details, "id")
	assert.Contains(t, details, "created_at")

	rows, err := ts.db.Select(context.Background(), "products", remote.Where(remote.Eq("id", id)))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "primary key unchanged")

	resp = ts.api.Patch(path, map[string]any{"product_title": "Zelda II"})
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestListInventory(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.item(t, "Asteroids", domain.StatusForSale)
	ts.item(t, "Zelda", domain.StatusForSale)
	ts.item(t, "Metroid", domain.StatusCollection)

	t.Run("filter and sort", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/inventory?filter=inventory_status:For%20Sale&sort=product_title&dir=desc")
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		view := decode[struct {
			Items []domain.InventoryView `json:"items"`
			Total int                    `json:"total"`
		}](t, resp.Body.Bytes())
		assert.Equal(t, 2, view.Total)
		require.Len(t, view.Items, 2)
		assert.Equal(t, "Zelda", view.Items[0].Title)
		assert.Equal(t, "Asteroids", view.Items[1].Title)
	})

	t.Run("search", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/inventory?search=metr")
		require.Equal(t, http.StatusOK, resp.Code)

		view := decode[struct {
			Total int `json:"total"`
		}](t, resp.Body.Bytes())
		assert.Equal(t, 1, view.Total)
	})

	t.Run("unsortable column", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/inventory?sort=tags")
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "VALIDATION", decodeError(t, resp.Body.Bytes()).Code)
	})

	t.Run("malformed filter", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/inventory?filter=inventory_status")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestInventoryTransitions(t *testing.T) {
	ts := setupTestServer(t, nil)
	id := ts.item(t, "Zelda", domain.StatusNormal)
	path := "/api/v1/inventory/" + strconv.FormatInt(id, 10)

	resp := ts.api.Get(path + "/transitions")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	options := decode[[]TransitionOption](t, resp.Body.Bytes())
	byStatus := map[domain.InventoryStatus]TransitionOption{}
	for _, o := range options {
		byStatus[o.Status] = o
	}
	assert.Equal(t, lifecycle.KindNoop, byStatus[domain.StatusNormal].Kind)
	assert.Equal(t, lifecycle.KindUpdate, byStatus[domain.StatusCollection].Kind)
	assert.False(t, byStatus[domain.StatusSold].Allowed)
	assert.NotEmpty(t, byStatus[domain.StatusSold].Reason)

	t.Run("shortcut", func(t *testing.T) {
		resp := ts.api.Post(path+"/shortcut", map[string]any{"key": "c"})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		plan := decode[lifecycle.Plan](t, resp.Body.Bytes())
		assert.Equal(t, domain.StatusCollection, plan.To)

		resp = ts.api.Get(path)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, domain.StatusCollection, decode[domain.InventoryView](t, resp.Body.Bytes()).Status)
	})

	t.Run("sold outside a sale", func(t *testing.T) {
		resp := ts.api.Post(path+"/status", map[string]any{"status": "Sold"})
		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, "ILLEGAL_TRANSITION", decodeError(t, resp.Body.Bytes()).Code)
	})
}

func TestSetInventoryTags(t *testing.T) {
	ts := setupTestServer(t, nil)
	id := ts.item(t, "Zelda", domain.StatusNormal)

	resp := ts.api.Post("/api/v1/tags/inventory", map[string]any{
		"name":          "Boxed",
		"tag_type":      "boolean",
		"display_type":  "text",
		"display_value": "Boxed",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	tag := decode[domain.Tag](t, resp.Body.Bytes())

	path := "/api/v1/inventory/" + strconv.FormatInt(id, 10) + "/tags"
	resp = ts.api.Put(path, map[string]any{
		"tags": []map[string]any{{"tag_id": tag.ID}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	applied := decode[struct {
		Tags    map[string]string `json:"tags"`
		Applied struct {
			Add []map[string]any `json:"add"`
		} `json:"applied"`
	}](t, resp.Body.Bytes())
	assert.Contains(t, applied.Tags, strconv.FormatInt(tag.ID, 10))
	assert.Len(t, applied.Applied.Add, 1)

	t.Run("in use tag cannot change type", func(t *testing.T) {
		resp := ts.api.Patch("/api/v1/tags/inventory/"+strconv.FormatInt(tag.ID, 10), map[string]any{"tag_type": "text"})
		assert.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	})

	t.Run("unknown scope", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/tags/people")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

func TestSaleFlow(t *testing.T) {
	ts := setupTestServer(t, nil)
	id := ts.item(t, "Zelda", domain.StatusForSale)

	resp := ts.api.Post("/api/v1/sales", map[string]any{"buyer_name": "Sam"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	sale := decode[domain.Sale](t, resp.Body.Bytes())
	assert.Equal(t, domain.SaleReserved, sale.Status)

	salePath := "/api/v1/sales/" + strconv.FormatInt(sale.ID, 10)
	resp = ts.api.Post(salePath+"/items", map[string]any{"inventory_id": id, "sold_price": "25.00"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.api.Post(salePath+"/finalize", map[string]any{})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/inventory/" + strconv.FormatInt(id, 10))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, domain.StatusSold, decode[domain.InventoryView](t, resp.Body.Bytes()).Status)

	t.Run("bad price", func(t *testing.T) {
		resp := ts.api.Post(salePath+"/items", map[string]any{"inventory_id": id, "sold_price": "cheap"})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		env := decodeError(t, resp.Body.Bytes())
		details, ok := env.Details.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, details, "sold_price")
	})

	t.Run("unknown sale", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/sales/999")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestWriteRateLimit(t *testing.T) {
	ts := setupTestServer(t, ratelimit.New(0.001, 1, 0))

	body := map[string]any{"product_title": "Zelda", "product_type": "Game"}
	resp := ts.api.Post("/api/v1/products", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/products", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, resp.Body.Bytes()).Code)

	resp = ts.api.Get("/api/v1/products")
	assert.Equal(t, http.StatusOK, resp.Code, "reads are not limited")
}

func TestRouterFallbacksUseEnvelope(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Get("/api/v1/nothing-here")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body.Bytes()).Code)

	resp = ts.api.Post("/api/v1/events", map[string]any{})
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	assert.Equal(t, "method not allowed", decodeError(t, resp.Body.Bytes()).Error)
}

func TestEnvelopeTransformer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		result, err := EnvelopeTransformer(nil, "200", map[string]string{"name": "Zelda"})
		require.NoError(t, err)

		env, ok := result.(Envelope)
		require.True(t, ok, "expected Envelope, got %T", result)
		assert.Equal(t, EnvelopeVersion, env.Version)
		assert.True(t, env.Success)
	})

	t.Run("error with details", func(t *testing.T) {
		apiErr := &APIError{
			Code:    "CONFLICT",
			Message: "Tag is in use",
			Details: map[string]string{"tag_id": "3"},
		}
		result, err := EnvelopeTransformer(nil, "409", apiErr)
		require.NoError(t, err)

		env, ok := result.(ErrorEnvelope)
		require.True(t, ok, "expected ErrorEnvelope, got %T", result)
		assert.Equal(t, EnvelopeVersion, env.Version)
		assert.False(t, env.Success)
		assert.Equal(t, "CONFLICT", env.Code)
		assert.Equal(t, "Tag is in use", env.Error)
		assert.Equal(t, map[string]string{"tag_id": "3"}, env.Details)
	})
}

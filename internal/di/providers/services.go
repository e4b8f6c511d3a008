package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/api"
	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/service"
	"github.com/collectr/collectr/internal/validation"
)

// ProvideCollections registers the cached collections.
func ProvideCollections(i do.Injector) (service.Collections, error) {
	c := do.MustInvoke[*cache.Store](i)
	return service.RegisterCollections(c), nil
}

// ProvideValidator provides the shared validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideRunner provides the mutation runner.
func ProvideRunner(i do.Injector) (*mutation.Runner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	c := do.MustInvoke[*cache.Store](i)
	eventHandle := do.MustInvoke[*EventManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	return mutation.NewRunner(c, log.Component("mutation"), m, eventHandle.Manager, mutation.RetryPolicy{
		Attempts: cfg.Mutation.RetryAttempts,
		Backoff:  cfg.Mutation.RetryBackoff,
	}), nil
}

// ProvideLifecycle loads the transition matrix and provides the lifecycle controller.
func ProvideLifecycle(i do.Injector) (*lifecycle.Controller, error) {
	log := do.MustInvoke[*logger.Logger](i)
	remoteHandle := do.MustInvoke[*RemoteHandle](i)
	runner := do.MustInvoke[*mutation.Runner](i)
	cols := do.MustInvoke[service.Collections](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	matrix, err := lifecycle.LoadMatrix(context.Background(), remoteHandle.Tracked)
	if err != nil {
		return nil, fmt.Errorf("load transition matrix: %w", err)
	}

	return lifecycle.NewController(matrix, runner, remoteHandle.Tracked, cols.Inventory,
		[]cache.Key{service.KeySales, service.KeyPurchases}, log.Logger, m), nil
}

// ProvideServices builds every entity service and groups them for the API.
func ProvideServices(i do.Injector) (*api.Services, error) {
	log := do.MustInvoke[*logger.Logger](i)
	remoteHandle := do.MustInvoke[*RemoteHandle](i)
	runner := do.MustInvoke[*mutation.Runner](i)
	cols := do.MustInvoke[service.Collections](i)
	v := do.MustInvoke[*validation.Validator](i)
	ctrl := do.MustInvoke[*lifecycle.Controller](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	store := remoteHandle.Tracked
	svcLog := log.Component("service")

	productTags := service.NewTagService(domain.ScopeProduct, runner, store, v, cols, m, svcLog)
	inventoryTags := service.NewTagService(domain.ScopeInventory, runner, store, v, cols, m, svcLog)
	inventory := service.NewInventoryService(runner, store, v, cols, inventoryTags, ctrl, svcLog)

	return &api.Services{
		Collections:    cols,
		Products:       service.NewProductService(runner, store, v, cols, productTags, svcLog),
		Prices:         service.NewPriceService(runner, store, svcLog),
		Inventory:      inventory,
		Purchases:      service.NewPurchaseService(runner, store, v, cols, svcLog),
		Sales:          service.NewSaleService(runner, store, v, cols, inventory, ctrl, svcLog),
		ProductTags:    productTags,
		InventoryTags:  inventoryTags,
		Lifecycle:      ctrl,
		InventoryTable: service.InventoryTable(),
		ProductsTable:  service.ProductsTable(),
	}, nil
}

// Package di provides dependency injection configuration for the collectr server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/api"
	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/di/providers"
	"github.com/collectr/collectr/internal/lifecycle"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/mutation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideEventManager)

	// Remote store and cache
	do.Provide(injector, providers.ProvideRemote)
	do.Provide(injector, providers.ProvideCache)
	do.Provide(injector, providers.ProvideCollections)

	// Mutations and lifecycle
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideRunner)
	do.Provide(injector, providers.ProvideLifecycle)

	// Business services
	do.Provide(injector, providers.ProvideServices)

	// Workers
	do.Provide(injector, providers.ProvideChangeWatcher)
	do.Provide(injector, providers.ProvideWriteLimiter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	_ = do.MustInvoke[*providers.EventManagerHandle](injector)
	if _, err := do.Invoke[*providers.RemoteHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*cache.Store](injector)
	_ = do.MustInvoke[*mutation.Runner](injector)
	if _, err := do.Invoke[*lifecycle.Controller](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*api.Services](injector)

	providers.PreloadCollections(injector)

	// Workers
	_ = do.MustInvoke[*providers.ChangeWatcherHandle](injector)
	_ = do.MustInvoke[*providers.WriteLimiterHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}

package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/remote/sqlstore"
)

// EventManagerHandle wraps the event manager with its context for lifecycle management.
type EventManagerHandle struct {
	*events.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideEventManager provides the server-sent events manager.
func ProvideEventManager(i do.Injector) (*EventManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := events.NewManager(log.Component("events"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("Event manager started")

	return &EventManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// RemoteHandle holds the remote store. Tracked records every write so the change
// watcher can tell our writes from other clients'; services write through it.
type RemoteHandle struct {
	*sqlstore.Store
	Tracked remote.Store
	Tracker *cache.ChangeTracker
}

// Shutdown implements do.Shutdownable.
func (h *RemoteHandle) Shutdown() error {
	return h.Close()
}

// ProvideRemote opens the configured remote store.
func ProvideRemote(i do.Injector) (*RemoteHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var (
		db  *sqlstore.Store
		err error
	)
	opts := []sqlstore.Option{sqlstore.WithTimeout(cfg.Remote.Timeout)}
	switch cfg.Remote.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		defer cancel()
		db, err = sqlstore.OpenPostgres(ctx, cfg.Remote.DSN, log.Component("remote"), opts...)
	case config.DriverSQLite:
		db, err = sqlstore.OpenSQLite(cfg.Remote.Path, log.Component("remote"), opts...)
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}

	log.WithField("driver", cfg.Remote.Driver).Info("Remote store opened")

	tracker := cache.NewChangeTracker(cfg.Cache.GracePeriod)
	return &RemoteHandle{
		Store:   db,
		Tracked: cache.TrackWrites(db, tracker),
		Tracker: tracker,
	}, nil
}

// ProvideCache provides the collection cache.
func ProvideCache(i do.Injector) (*cache.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	remoteHandle := do.MustInvoke[*RemoteHandle](i)
	eventHandle := do.MustInvoke[*EventManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	return cache.New(remoteHandle.Tracked, cache.Options{
		PageSize: cfg.Cache.PageSize,
		Logger:   log.Component("cache"),
		Metrics:  m,
		Emitter:  eventHandle.Manager,
	}), nil
}

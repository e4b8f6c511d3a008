package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/ratelimit"
	"github.com/collectr/collectr/internal/service"
)

// ChangeWatcherHandle wraps the external change watcher with shutdown capability.
type ChangeWatcherHandle struct {
	*cache.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *ChangeWatcherHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return nil
}

// ProvideChangeWatcher starts polling the master timestamp.
func ProvideChangeWatcher(i do.Injector) (*ChangeWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	remoteHandle := do.MustInvoke[*RemoteHandle](i)
	c := do.MustInvoke[*cache.Store](i)
	eventHandle := do.MustInvoke[*EventManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	w := cache.NewWatcher(remoteHandle.Store, c, remoteHandle.Tracker, cache.WatcherConfig{
		Interval:   cfg.Cache.PollInterval,
		MinRefetch: cfg.Cache.MinRefetch,
	}, log.Logger, m, eventHandle.Manager)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	log.WithField("interval", cfg.Cache.PollInterval).Info("Change watcher started")

	return &ChangeWatcherHandle{Watcher: w, cancel: cancel, done: done}, nil
}

// Per-client write limits.
const (
	writeRate  = 20
	writeBurst = 40
	writeIdle  = 10 * time.Minute
)

// WriteLimiterHandle wraps the per-client write limiter. The embedded limiter's
// Shutdown stops its sweep goroutine.
type WriteLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// ProvideWriteLimiter provides the per-client limiter for mutating requests.
func ProvideWriteLimiter(i do.Injector) (*WriteLimiterHandle, error) {
	return &WriteLimiterHandle{KeyedRateLimiter: ratelimit.New(writeRate, writeBurst, writeIdle)}, nil
}

// PreloadCollections loads every collection so the first requests are served
// from the cache. Failures are logged; collections load lazily later.
func PreloadCollections(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	cols := do.MustInvoke[service.Collections](i)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := cols.Preload(ctx); err != nil {
		log.WithError(err).Warn("Preloading collections failed")
		return
	}
	log.Info("Collections preloaded", "duration", time.Since(start))
}

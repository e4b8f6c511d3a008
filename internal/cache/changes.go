package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/remote"
)

// ChangeTracker remembers when this process last wrote to each table so that a
// remote change can be told apart from our own.
type ChangeTracker struct {
	grace time.Duration
	now   func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewChangeTracker creates a tracker that attributes remote changes within grace
// of a local write to this process.
func NewChangeTracker(grace time.Duration) *ChangeTracker {
	return &ChangeTracker{grace: grace, now: time.Now, last: make(map[string]time.Time)}
}

// Record notes a local write to table.
func (t *ChangeTracker) Record(table string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[table] = t.now()
}

// LastWrite returns the time of the latest local write to table.
func (t *ChangeTracker) LastWrite(table string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.last[table]
	return at, ok
}

// IsLocal reports whether a change stamped at was most likely made by this
// process.
func (t *ChangeTracker) IsLocal(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, local := range t.last {
		d := at.Sub(local)
		if d < 0 {
			d = -d
		}
		if d <= t.grace {
			return true
		}
	}
	return false
}

// TrackWrites wraps store so every successful write is recorded in tracker.
func TrackWrites(store remote.Store, tracker *ChangeTracker) remote.Store {
	return &trackedStore{Store: store, tracker: tracker}
}

type trackedStore struct {
	remote.Store
	tracker *ChangeTracker
}

func (s *trackedStore) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	out, err := s.Store.Insert(ctx, table, row)
	if err == nil {
		s.tracker.Record(table)
	}
	return out, err
}

func (s *trackedStore) Update(ctx context.Context, table string, id int64, patch remote.Row) (remote.Row, error) {
	out, err := s.Store.Update(ctx, table, id, patch)
	if err == nil {
		s.tracker.Record(table)
	}
	return out, err
}

func (s *trackedStore) UpdateWhere(ctx context.Context, table string, match, patch remote.Row) ([]remote.Row, error) {
	out, err := s.Store.UpdateWhere(ctx, table, match, patch)
	if err == nil {
		s.tracker.Record(table)
	}
	return out, err
}

func (s *trackedStore) Delete(ctx context.Context, table string, id int64) error {
	err := s.Store.Delete(ctx, table, id)
	if err == nil {
		s.tracker.Record(table)
	}
	return err
}

func (s *trackedStore) DeleteWhere(ctx context.Context, table string, match remote.Row) (int64, error) {
	n, err := s.Store.DeleteWhere(ctx, table, match)
	if err == nil {
		s.tracker.Record(table)
	}
	return n, err
}

// Master timestamp location.
const (
	SettingsTable      = "site_settings"
	MasterTimestampKey = "master_timestamp"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Interval   time.Duration // poll period
	MinRefetch time.Duration // minimum spacing between resyncs
}

// Watcher polls the master timestamp and reloads every registered collection when
// another client changed the store.
type Watcher struct {
	remote  remote.Store
	cache   *Store
	tracker *ChangeTracker
	limiter *rate.Limiter
	cfg     WatcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	emitter events.Emitter

	mu       sync.Mutex
	lastSeen time.Time
}

// NewWatcher creates a watcher over the remote store backing c.
func NewWatcher(store remote.Store, c *Store, tracker *ChangeTracker, cfg WatcherConfig, logger *slog.Logger, m *metrics.Metrics, emitter events.Emitter) *Watcher {
	limit := rate.Inf
	if cfg.MinRefetch > 0 {
		limit = rate.Every(cfg.MinRefetch)
	}
	if emitter == nil {
		emitter = events.Discard
	}
	return &Watcher{
		remote:  store,
		cache:   c,
		tracker: tracker,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		logger:  logger.With("component", "watcher"),
		metrics: m,
		emitter: emitter,
	}
}

// Run polls until ctx is canceled. It returns immediately when the interval is
// not positive.
func (w *Watcher) Run(ctx context.Context) {
	if w.cfg.Interval <= 0 {
		w.logger.Info("external change detection disabled")
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if _, err := w.Check(ctx); err != nil {
		w.logger.Warn("initial change check failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				w.logger.Warn("change check failed", "error", err)
			}
		}
	}
}

// Check reads the master timestamp once and resyncs when it moved because of
// another client. It reports whether a resync happened. The first call only
// records a baseline.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	ts, err := w.masterTimestamp(ctx)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	first := w.lastSeen.IsZero()
	moved := ts.After(w.lastSeen)
	w.mu.Unlock()

	if first {
		w.setLastSeen(ts)
		return false, nil
	}
	if !moved {
		return false, nil
	}
	if w.tracker.IsLocal(ts) {
		w.setLastSeen(ts)
		return false, nil
	}
	if !w.limiter.Allow() {
		// lastSeen stays put so the change is picked up by a later poll.
		w.logger.Debug("resync throttled", "master_timestamp", ts)
		return false, nil
	}

	w.setLastSeen(ts)
	w.logger.Info("external change detected, refetching", "master_timestamp", ts)
	w.metrics.ObserveExternalChange()
	w.emitter.Emit(events.New(events.EventExternalChange, map[string]any{"master_timestamp": ts}))
	if err := w.cache.RefetchAll(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Watcher) setLastSeen(ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = ts
}

func (w *Watcher) masterTimestamp(ctx context.Context) (time.Time, error) {
	rows, err := w.remote.Select(ctx, SettingsTable, remote.Where(remote.Eq("key", MasterTimestampKey)))
	if err != nil {
		return time.Time{}, fmt.Errorf("read master timestamp: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, fmt.Errorf("read master timestamp: no %s row", MasterTimestampKey)
	}
	return parseTimestamp(rows[0]["last_updated"])
}

func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse master timestamp %q: %w", ts, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected master timestamp type %T", v)
	}
}

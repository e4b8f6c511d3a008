// Package cache is the process-wide store of collections loaded from the remote
// store. Every key holds one collection (a slice of view rows). Writers replace a
// collection wholesale rather than editing it in place, so a snapshot is just the
// set of values held at the time it was taken.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/remote"
)

// Key names a cached collection.
type Key string

// Descriptor tells the cache how to reload a key from the remote store.
type Descriptor struct {
	Source string
	Query  remote.Query
	Decode func([]remote.Row) (any, error)
}

// For returns a descriptor that loads source and decodes its rows into []T.
func For[T any](source string, q remote.Query) Descriptor {
	return Descriptor{
		Source: source,
		Query:  q,
		Decode: func(rows []remote.Row) (any, error) {
			return remote.DecodeAll[T](rows)
		},
	}
}

type entry struct {
	value    any
	stale    bool
	loadedAt time.Time
}

// Options configures a Store.
type Options struct {
	PageSize int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Emitter  events.Emitter
}

// Store holds the cached collections.
type Store struct {
	remote   remote.Store
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	emitter  events.Emitter

	mu          sync.RWMutex
	entries     map[Key]*entry
	generations map[Key]uint64
	descriptors map[Key]Descriptor

	loads singleflight.Group
}

// New creates an empty cache backed by store.
func New(store remote.Store, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = remote.DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	return &Store{
		remote:      store,
		pageSize:    opts.PageSize,
		logger:      opts.Logger.With("component", "cache"),
		metrics:     opts.Metrics,
		emitter:     opts.Emitter,
		entries:     make(map[Key]*entry),
		generations: make(map[Key]uint64),
		descriptors: make(map[Key]Descriptor),
	}
}

// Register remembers how to reload key.
func (s *Store) Register(key Key, d Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[key] = d
}

// Descriptor returns the registered descriptor of key.
func (s *Store) Descriptor(key Key) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[key]
	return d, ok
}

// Keys returns the registered keys in name order.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.descriptors))
	for k := range s.descriptors {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Get returns the collection held under key.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// IsStale reports whether key was invalidated and not reloaded since.
func (s *Store) IsStale(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return !ok || e.stale
}

// Set replaces the collection held under key.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[key]++
	s.entries[key] = &entry{value: value, loadedAt: time.Now()}
}

// Update replaces the collection under key with fn applied to it. It does nothing
// and returns false when key holds no collection.
func (s *Store) Update(key Key, fn func(current any) any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.generations[key]++
	s.entries[key] = &entry{value: fn(e.value), stale: e.stale, loadedAt: e.loadedAt}
	return true
}

// Invalidate marks key stale so the next Load reloads it. Reloads already in
// flight for key are discarded when they land.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(key)
}

func (s *Store) invalidateLocked(key Key) uint64 {
	s.generations[key]++
	if e, ok := s.entries[key]; ok {
		s.entries[key] = &entry{value: e.value, stale: true, loadedAt: e.loadedAt}
	}
	return s.generations[key]
}

// Load returns the collection under key, fetching it with the registered
// descriptor when it is missing or stale.
func (s *Store) Load(ctx context.Context, key Key) (any, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok && !e.stale {
		return e.value, nil
	}

	d, ok := s.Descriptor(key)
	if !ok {
		return nil, domainerrors.Internalf("cache key %q has no descriptor", key)
	}

	v, err, _ := s.loads.Do(string(key), func() (any, error) {
		s.mu.Lock()
		gen := s.generations[key]
		s.mu.Unlock()
		return s.fetchAndStore(ctx, key, d, gen)
	})
	return v, err
}

// InvalidateAndRefetch marks key stale and reloads it with d, which is also
// registered for later loads. A reload overtaken by a newer write or
// invalidation is discarded and key stays stale.
func (s *Store) InvalidateAndRefetch(ctx context.Context, key Key, d Descriptor) error {
	s.mu.Lock()
	s.descriptors[key] = d
	gen := s.invalidateLocked(key)
	s.mu.Unlock()

	_, err := s.fetchAndStore(ctx, key, d, gen)
	return err
}

// Refetch reloads key with its registered descriptor.
func (s *Store) Refetch(ctx context.Context, key Key) error {
	d, ok := s.Descriptor(key)
	if !ok {
		return domainerrors.Internalf("cache key %q has no descriptor", key)
	}
	return s.InvalidateAndRefetch(ctx, key, d)
}

// RefetchAll reloads every registered key and joins the failures.
func (s *Store) RefetchAll(ctx context.Context) error {
	var errs []error
	for _, key := range s.Keys() {
		if err := s.Refetch(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) fetchAndStore(ctx context.Context, key Key, d Descriptor, gen uint64) (any, error) {
	rows, err := remote.FetchAll(ctx, s.remote, d.Source, d.Query, s.pageSize)
	if err != nil {
		s.metrics.ObserveRefetch(string(key), metrics.RefetchFailed)
		s.logger.Warn("refetch failed", "key", key, "error", err)
		return nil, fmt.Errorf("refetch %s: %w", key, err)
	}
	value, err := d.Decode(rows)
	if err != nil {
		s.metrics.ObserveRefetch(string(key), metrics.RefetchFailed)
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	s.mu.Lock()
	if s.generations[key] != gen {
		s.mu.Unlock()
		s.metrics.ObserveRefetch(string(key), metrics.RefetchDiscarded)
		s.logger.Debug("discarding stale refetch", "key", key, "rows", len(rows))
		return value, nil
	}
	s.entries[key] = &entry{value: value, loadedAt: time.Now()}
	s.mu.Unlock()

	s.metrics.ObserveRefetch(string(key), metrics.RefetchApplied)
	s.logger.Debug("collection loaded", "key", key, "rows", len(rows))
	s.emitter.Emit(events.New(events.EventCacheRefetched, events.CacheEventData{Key: string(key), Rows: len(rows)}))
	return value, nil
}

// Snapshot is the state of a set of keys at one point in time.
type Snapshot struct {
	values map[Key]any
	absent map[Key]bool
}

// Keys returns the keys covered by the snapshot.
func (sn Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(sn.values)+len(sn.absent))
	for k := range sn.values {
		keys = append(keys, k)
	}
	for k := range sn.absent {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot captures the collections under keys. Keys holding nothing are recorded
// as absent.
func (s *Store) Snapshot(keys ...Key) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn := Snapshot{values: make(map[Key]any), absent: make(map[Key]bool)}
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			sn.values[k] = e.value
		} else {
			sn.absent[k] = true
		}
	}
	return sn
}

// Restore puts back the collections captured by sn.
func (s *Store) Restore(sn Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(sn)
}

// Generations returns the write counters of keys. A counter moves on every Set,
// Update, Invalidate and Restore of its key.
func (s *Store) Generations(keys ...Key) map[Key]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gens := make(map[Key]uint64, len(keys))
	for _, k := range keys {
		gens[k] = s.generations[k]
	}
	return gens
}

// Rollback puts back the collections captured by sn and returns the keys that
// were written after gens was taken. The snapshot predates those writes, so the
// returned keys must be reloaded from the remote store.
func (s *Store) Rollback(sn Snapshot, gens map[Key]uint64) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []Key
	for k, gen := range gens {
		if s.generations[k] != gen {
			moved = append(moved, k)
		}
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	s.restoreLocked(sn)
	return moved
}

func (s *Store) restoreLocked(sn Snapshot) {
	for k, v := range sn.values {
		s.generations[k]++
		prev := s.entries[k]
		e := &entry{value: v, loadedAt: time.Now()}
		if prev != nil {
			e.stale, e.loadedAt = prev.stale, prev.loadedAt
		}
		s.entries[k] = e
	}
	for k := range sn.absent {
		s.generations[k]++
		delete(s.entries, k)
	}
}

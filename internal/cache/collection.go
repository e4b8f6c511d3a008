package cache

import (
	"context"
	"fmt"

	"github.com/collectr/collectr/internal/remote"
)

// Collection is a typed view of one key holding a []T.
type Collection[T any] struct {
	store *Store
	key   Key
	desc  Descriptor
}

// NewCollection registers key as a collection of T loaded from source with q.
func NewCollection[T any](s *Store, key Key, source string, q remote.Query) Collection[T] {
	d := For[T](source, q)
	s.Register(key, d)
	return Collection[T]{store: s, key: key, desc: d}
}

// Key returns the cache key.
func (c Collection[T]) Key() Key { return c.key }

// Descriptor returns the descriptor the collection reloads with.
func (c Collection[T]) Descriptor() Descriptor { return c.desc }

// Store returns the underlying cache.
func (c Collection[T]) Store() *Store { return c.store }

// Get returns the cached items without touching the remote store.
func (c Collection[T]) Get() ([]T, bool) {
	v, ok := c.store.Get(c.key)
	if !ok {
		return nil, false
	}
	items, ok := v.([]T)
	return items, ok
}

// Load returns the items, fetching them when missing or stale.
func (c Collection[T]) Load(ctx context.Context) ([]T, error) {
	v, err := c.store.Load(ctx, c.key)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("cache key %q holds %T", c.key, v)
	}
	return items, nil
}

// Set replaces the items.
func (c Collection[T]) Set(items []T) {
	c.store.Set(c.key, items)
}

// Refetch invalidates the items and reloads them.
func (c Collection[T]) Refetch(ctx context.Context) error {
	return c.store.InvalidateAndRefetch(ctx, c.key, c.desc)
}

// Find returns the first cached item accepted by match.
func (c Collection[T]) Find(match func(T) bool) (T, bool) {
	items, _ := c.Get()
	for _, it := range items {
		if match(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

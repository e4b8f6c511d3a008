// Package mutation applies writes optimistically: it patches the cached
// collections first, performs the remote write, and either confirms the patch or
// restores the collections exactly as they were.
package mutation

import (
	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/remote"
)

// Patch is an optimistic change to a collection of T. Patches never modify the
// slice they are given; they return a new one.
type Patch[T any] interface {
	apply(items []T, idOf func(T) int64) []T
}

// InsertDraft adds a provisional row, at the front when Prepend is set.
type InsertDraft[T any] struct {
	Draft   T
	Prepend bool
}

func (p InsertDraft[T]) apply(items []T, _ func(T) int64) []T {
	out := make([]T, 0, len(items)+1)
	if p.Prepend {
		out = append(out, p.Draft)
		return append(out, items...)
	}
	out = append(out, items...)
	return append(out, p.Draft)
}

// ReplaceByID replaces the row with the given id by Replace(row).
type ReplaceByID[T any] struct {
	ID      int64
	Replace func(T) T
}

func (p ReplaceByID[T]) apply(items []T, idOf func(T) int64) []T {
	out := make([]T, len(items))
	for i, it := range items {
		if idOf(it) == p.ID {
			it = p.Replace(it)
		}
		out[i] = it
	}
	return out
}

// Transform replaces the whole collection with Fn(items). Fn must not modify
// its argument.
type Transform[T any] struct {
	Fn func([]T) []T
}

func (p Transform[T]) apply(items []T, _ func(T) int64) []T {
	return p.Fn(items)
}

// RemoveByID returns a patch dropping the row with the given id.
func RemoveByID[T any](id int64, idOf func(T) int64) Transform[T] {
	return Transform[T]{Fn: func(items []T) []T {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if idOf(it) != id {
				out = append(out, it)
			}
		}
		return out
	}}
}

// Merge returns item with the columns in changes overlaid through its JSON field
// names. Columns the item does not carry are ignored. When the overlay does not
// decode, item is returned unchanged.
func Merge[T any](item T, changes remote.Row) T {
	row, err := remote.Encode(item)
	if err != nil {
		return item
	}
	for k, v := range changes {
		if _, ok := row[k]; ok {
			row[k] = v
		}
	}
	merged, err := remote.Decode[T](row)
	if err != nil {
		return item
	}
	return merged
}

// Target binds patches to the cache key holding the collection they change.
type Target struct {
	Key   cache.Key
	apply func(any) any
}

// On creates a target applying patches, in order, to the []T under key.
func On[T any](key cache.Key, idOf func(T) int64, patches ...Patch[T]) Target {
	return Target{
		Key: key,
		apply: func(v any) any {
			items, ok := v.([]T)
			if !ok {
				return v
			}
			for _, p := range patches {
				items = p.apply(items, idOf)
			}
			return items
		},
	}
}

// Apply patches the cache. Targets whose key holds no collection are skipped.
func Apply(c *cache.Store, targets ...Target) {
	for _, t := range targets {
		c.Update(t.Key, t.apply)
	}
}

func keysOf(targets []Target) []cache.Key {
	seen := make(map[cache.Key]bool, len(targets))
	keys := make([]cache.Key, 0, len(targets))
	for _, t := range targets {
		if !seen[t.Key] {
			seen[t.Key] = true
			keys = append(keys, t.Key)
		}
	}
	return keys
}

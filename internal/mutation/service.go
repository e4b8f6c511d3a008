package mutation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

// Entity describes how one kind of record is cached and written.
// T is the cached view row, D the create input.
type Entity[T, D any] struct {
	Name     string    // used in logs, metrics and events
	Table    string    // table written to
	Key      cache.Key // collection holding the view rows
	IDColumn string    // id column of the view row
	IDOf     func(T) int64

	// Draft builds the optimistic row shown while a create is in flight.
	Draft   func(D, time.Time) T
	Prepend bool

	// Check runs after struct validation on create, for rules that need more
	// than field tags.
	Check func(D) error
	// Columns are the columns an update may write. Any other key is rejected
	// before the store is called.
	Columns []string
	// IntColumns are the columns of Columns holding integers.
	IntColumns []string
	// ChangeRules are validator rules keyed by column, applied to updates.
	ChangeRules map[string]string
	// CanDelete vetoes deleting a cached row.
	CanDelete func(T) error

	// Related returns extra optimistic patches for an update, on other
	// collections that embed this record.
	Related func(id int64, changes remote.Row) []Target
	// Touch resets age fields of a row once an update is confirmed.
	Touch func(T, time.Time) T

	// Refetch lists dependent keys reloaded after every confirmed write. Key
	// itself is always reloaded after a create or delete.
	Refetch []cache.Key
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	background bool
	success    string
}

// Background marks the call as low-stakes: failures are logged but not announced.
func Background() Option {
	return func(o *callOptions) { o.background = true }
}

// Announce sets the notification sent when the call succeeds.
func Announce(msg string) Option {
	return func(o *callOptions) { o.success = msg }
}

// IsBackground reports whether opts mark a call as background.
func IsBackground(opts ...Option) bool {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.background
}

// Service exposes create, update and delete for one entity.
type Service[T, D any] struct {
	entity    Entity[T, D]
	runner    *Runner
	remote    remote.Store
	validator *validation.Validator
	inflight  atomic.Int64
}

// NewService creates the mutation service of e.
func NewService[T, D any](r *Runner, store remote.Store, v *validation.Validator, e Entity[T, D]) *Service[T, D] {
	return &Service[T, D]{entity: e, runner: r, remote: store, validator: v}
}

// Entity returns the entity description.
func (s *Service[T, D]) Entity() Entity[T, D] { return s.entity }

// IsUpdating reports whether a write is in flight.
func (s *Service[T, D]) IsUpdating() bool {
	return s.inflight.Load() > 0
}

// Find returns the cached row with the given id.
func (s *Service[T, D]) Find(id int64) (T, bool) {
	var zero T
	v, ok := s.runner.Cache().Get(s.entity.Key)
	if !ok {
		return zero, false
	}
	items, _ := v.([]T)
	for _, it := range items {
		if s.entity.IDOf(it) == id {
			return it, true
		}
	}
	return zero, false
}

// Create validates draft, shows it as a draft row, and inserts it. The draft row
// takes the assigned id once the insert is confirmed.
func (s *Service[T, D]) Create(ctx context.Context, draft D, opts ...Option) (remote.Row, error) {
	if err := s.validator.Validate(draft); err != nil {
		return nil, err
	}
	if s.entity.Check != nil {
		if err := s.entity.Check(draft); err != nil {
			return nil, err
		}
	}
	row, err := remote.Encode(draft)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeValidation, "invalid %s", s.entity.Name)
	}

	o := callOptions{success: s.entity.Name + " created"}
	for _, opt := range opts {
		opt(&o)
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	var optimistic []Target
	if s.entity.Draft != nil {
		optimistic = append(optimistic, On[T](s.entity.Key, s.entity.IDOf,
			InsertDraft[T]{Draft: s.entity.Draft(draft, time.Now()), Prepend: s.entity.Prepend}))
	}

	return Run(ctx, s.runner, Op[remote.Row]{
		Entity:     s.entity.Name,
		Name:       "create",
		Optimistic: optimistic,
		Remote: func(ctx context.Context) (remote.Row, error) {
			return s.remote.Insert(ctx, s.entity.Table, row)
		},
		Post: func(confirmed remote.Row) []Target {
			newID, _ := confirmed.ID()
			assigned := remote.Row{s.entity.IDColumn: newID}
			return []Target{On[T](s.entity.Key, s.entity.IDOf, ReplaceByID[T]{
				ID:      domain.DraftID,
				Replace: func(t T) T { return Merge(t, assigned) },
			})}
		},
		Refetch:    append([]cache.Key{s.entity.Key}, s.entity.Refetch...),
		Background: o.background,
		Success:    o.success,
	})
}

// Update validates changes, applies them to the cached row (and to the rows
// Related names), and writes them.
func (s *Service[T, D]) Update(ctx context.Context, id int64, changes remote.Row, opts ...Option) (remote.Row, error) {
	if domain.IsDraftID(id) {
		return nil, domainerrors.Conflictf("%s is still being saved", s.entity.Name)
	}
	if len(changes) == 0 {
		return nil, domainerrors.Validation("validation failed: no changes")
	}
	if err := s.checkColumns(changes); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateChanges(changes, s.entity.ChangeRules); err != nil {
		return nil, err
	}

	o := callOptions{success: s.entity.Name + " updated"}
	for _, opt := range opts {
		opt(&o)
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	optimistic := []Target{On[T](s.entity.Key, s.entity.IDOf, ReplaceByID[T]{
		ID:      id,
		Replace: func(t T) T { return Merge(t, changes) },
	})}
	if s.entity.Related != nil {
		optimistic = append(optimistic, s.entity.Related(id, changes)...)
	}

	return Run(ctx, s.runner, Op[remote.Row]{
		Entity:     s.entity.Name,
		Name:       "update",
		ID:         id,
		Optimistic: optimistic,
		Remote: func(ctx context.Context) (remote.Row, error) {
			return s.remote.Update(ctx, s.entity.Table, id, changes)
		},
		Post: func(confirmed remote.Row) []Target {
			now := time.Now()
			return []Target{On[T](s.entity.Key, s.entity.IDOf, ReplaceByID[T]{
				ID: id,
				Replace: func(t T) T {
					t = Merge(t, confirmed)
					if s.entity.Touch != nil {
						t = s.entity.Touch(t, now)
					}
					return t
				},
			})}
		},
		Refetch:    s.entity.Refetch,
		Background: o.background,
		Success:    o.success,
	})
}

// checkColumns rejects keys outside Columns and non-integral values of
// IntColumns.
func (s *Service[T, D]) checkColumns(changes remote.Row) error {
	details := map[string]string{}
	for col, v := range changes {
		switch {
		case !slices.Contains(s.entity.Columns, col):
			details[col] = "This field cannot be changed"
		case v != nil && slices.Contains(s.entity.IntColumns, col):
			if _, ok := changes.Int(col); !ok {
				details[col] = "Must be a whole number"
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	cols := slices.Sorted(maps.Keys(details))
	return domainerrors.ValidationWithDetails("validation failed: invalid fields "+strings.Join(cols, ", "), details)
}

// Delete removes the row from its collection and deletes it.
func (s *Service[T, D]) Delete(ctx context.Context, id int64, opts ...Option) error {
	if domain.IsDraftID(id) {
		return domainerrors.Conflictf("%s is still being saved", s.entity.Name)
	}
	if s.entity.CanDelete != nil {
		if current, ok := s.Find(id); ok {
			if err := s.entity.CanDelete(current); err != nil {
				return err
			}
		}
	}

	o := callOptions{success: s.entity.Name + " deleted"}
	for _, opt := range opts {
		opt(&o)
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	_, err := Run(ctx, s.runner, Op[struct{}]{
		Entity:     s.entity.Name,
		Name:       "delete",
		ID:         id,
		Optimistic: []Target{On[T](s.entity.Key, s.entity.IDOf, RemoveByID(id, s.entity.IDOf))},
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.remote.Delete(ctx, s.entity.Table, id)
		},
		Refetch:    append([]cache.Key{s.entity.Key}, s.entity.Refetch...),
		Background: o.background,
		Success:    o.success,
	})
	return err
}

// Decoded runs a write returning a row and decodes the row into R.
func Decoded[R any](row remote.Row, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}
	out, derr := remote.Decode[R](row)
	if derr != nil {
		return zero, fmt.Errorf("decode confirmed row: %w", derr)
	}
	return out, nil
}

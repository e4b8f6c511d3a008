package relation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
)

// Selector holds the tag selection of one entity while it is being edited.
type Selector struct {
	engine   *Engine
	cache    *cache.Store
	refetch  []cache.Key
	entityID int64
	logger   *slog.Logger

	mu      sync.Mutex
	initial Selection
	desired Selection
}

// NewSelector starts editing the selection of entityID from initial. Once a
// batch settles, the keys in refetch are reloaded.
func NewSelector(engine *Engine, c *cache.Store, entityID int64, initial Selection, refetch ...cache.Key) *Selector {
	if initial == nil {
		initial = Selection{}
	}
	return &Selector{
		engine:   engine,
		cache:    c,
		refetch:  refetch,
		entityID: entityID,
		logger:   engine.logger,
		initial:  initial.Clone(),
		desired:  initial.Clone(),
	}
}

// LoadSelector starts editing from the edges currently stored for entityID.
func LoadSelector(ctx context.Context, engine *Engine, c *cache.Store, entityID int64, refetch ...cache.Key) (*Selector, error) {
	initial, err := engine.edges.Load(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return NewSelector(engine, c, entityID, initial, refetch...), nil
}

// EntityID returns the edited entity.
func (s *Selector) EntityID() int64 { return s.entityID }

// Toggle selects tag when it is not selected and deselects it otherwise. Boolean
// tags are selected with their sentinel value, others with no value.
func (s *Selector) Toggle(tag domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.desired[tag.ID]; ok {
		delete(s.desired, tag.ID)
		return
	}
	if tag.Type == domain.TagBoolean {
		s.desired[tag.ID] = domain.BooleanTagValue
		return
	}
	s.desired[tag.ID] = ""
}

// SetValue selects tag with value. Boolean tags always carry their sentinel.
func (s *Selector) SetValue(tag domain.Tag, value string) error {
	if tag.Type == domain.TagBoolean {
		value = domain.BooleanTagValue
	}
	if !tag.AllowsValue(value) {
		return domainerrors.Validationf("validation failed: %q is not a permitted value of tag %s", value, tag.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired[tag.ID] = value
	return nil
}

// Deselect removes tag from the selection.
func (s *Selector) Deselect(tagID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.desired, tagID)
}

// Selected returns a copy of the selection being edited.
func (s *Selector) Selected() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired.Clone()
}

// Changes returns what ApplyChanges would send.
func (s *Selector) Changes() Changes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Diff(s.initial, s.desired)
}

// HasChanges reports whether the selection differs from the stored one.
func (s *Selector) HasChanges() bool {
	return !s.Changes().Empty()
}

// Reset discards the edits.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired = s.initial.Clone()
}

// ApplyChanges writes the difference between the edited and the stored selection.
// Successful operations become the new baseline even when others fail, so a
// retry only sends what is still missing. The dependent collections are
// reloaded once the whole batch settled.
func (s *Selector) ApplyChanges(ctx context.Context) error {
	s.mu.Lock()
	ch := Diff(s.initial, s.desired)
	s.mu.Unlock()
	if ch.Empty() {
		return nil
	}

	res, err := s.engine.Apply(ctx, s.entityID, ch)

	s.mu.Lock()
	s.initial = s.initial.Apply(res.Applied)
	s.mu.Unlock()

	if s.cache != nil {
		for _, key := range s.refetch {
			if rerr := s.cache.Refetch(ctx, key); rerr != nil {
				s.logger.Warn("refetch after tag changes failed", "key", key, "error", rerr)
			}
		}
	}
	return err
}

// Reload replaces the baseline with the edges currently stored, keeping the
// edits. It is the recovery path after a partial failure.
func (s *Selector) Reload(ctx context.Context) error {
	current, err := s.engine.edges.Load(ctx, s.entityID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initial = current
	return nil
}

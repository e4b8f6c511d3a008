package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/mutation"
	"github.com/collectr/collectr/internal/relation"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/validation"
)

// TagService manages the tag definitions of one scope and the selectors that
// attach them to products or inventory items.
// Product and inventory tags share this code; only the tables differ.
type TagService struct {
	*mutation.Service[domain.Tag, domain.TagDraft]
	scope  domain.TagScope
	tags   cache.Collection[domain.Tag]
	owners cache.Key
	remote remote.Store
	engine *relation.Engine
	runner *mutation.Runner
	logger *slog.Logger
}

// NewTagService creates the tag service of scope. owners is the collection of
// tagged entities, reloaded after a selector applies its changes.
func NewTagService(
	scope domain.TagScope,
	runner *mutation.Runner,
	store remote.Store,
	v *validation.Validator,
	cols Collections,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TagService {
	logger = logger.With("component", "tags", "scope", string(scope))
	tags := cols.Tags(scope)
	owners := KeyInventory
	if scope == domain.ScopeProduct {
		owners = KeyProducts
	}

	s := &TagService{
		scope:  scope,
		tags:   tags,
		owners: owners,
		remote: store,
		engine: relation.NewEngine(relation.NewTableEdges(store, scope), logger, m, runner.Emitter()),
		runner: runner,
		logger: logger,
	}
	s.Service = mutation.NewService(runner, store, v, mutation.Entity[domain.Tag, domain.TagDraft]{
		Name:     string(scope) + " tag",
		Table:    scope.Table(),
		Key:      tags.Key(),
		IDColumn: "id",
		IDOf:     idOfTag,
		Draft:    tagDraft,
		Check:    checkTagDraft,
		Columns: []string{
			"name", "description", "tag_type", "tag_values", "display_type", "display_value",
			"product_types", "show_in_table",
		},
		ChangeRules: map[string]string{
			"name":          "required",
			"tag_type":      "omitempty,oneof=boolean set text",
			"display_type":  "omitempty,oneof=icon text image",
			"display_value": "required",
		},
	})
	return s
}

// Scope returns the scope the service manages.
func (s *TagService) Scope() domain.TagScope { return s.scope }

// Engine returns the relationship engine of the scope.
func (s *TagService) Engine() *relation.Engine { return s.engine }

func tagDraft(d domain.TagDraft, now time.Time) domain.Tag {
	return domain.Tag{
		ID:           domain.DraftID,
		Name:         d.Name,
		Description:  d.Description,
		Type:         d.Type,
		Values:       d.Values,
		DisplayType:  d.DisplayType,
		DisplayValue: d.DisplayValue,
		ProductTypes: d.ProductTypes,
		ShowInTable:  domain.Flag(d.ShowInTable),
		CreatedAt:    now,
	}
}

func checkTagDraft(d domain.TagDraft) error {
	return checkTagValues(d.Type, d.Values)
}

func checkTagValues(typ domain.TagType, values []string) error {
	switch {
	case typ == domain.TagSet && len(values) == 0:
		return domainerrors.ValidationWithDetails("validation failed: set tags need at least one value",
			map[string]string{"tag_values": "Set tags need at least one value"})
	case typ != domain.TagSet && len(values) > 0:
		return domainerrors.ValidationWithDetails("validation failed: only set tags have values",
			map[string]string{"tag_values": "Only set tags have values"})
	}
	return nil
}

// Create validates and creates a tag definition.
func (s *TagService) Create(ctx context.Context, draft domain.TagDraft, opts ...mutation.Option) (domain.Tag, error) {
	if draft.Values == nil {
		draft.Values = domain.StringList{}
	}
	if draft.ProductTypes == nil {
		draft.ProductTypes = domain.StringList{}
	}
	return mutation.Decoded[domain.Tag](s.Service.Create(ctx, draft, opts...))
}

// Get returns the tag with its usage count, from the cache when it is loaded.
func (s *TagService) Get(ctx context.Context, id int64) (domain.Tag, error) {
	if t, ok := s.Find(id); ok {
		return t, nil
	}
	rows, err := s.remote.Select(ctx, s.scope.View(), remote.Where(remote.Eq("id", id)))
	if err != nil {
		return domain.Tag{}, mutation.Classify(err)
	}
	if len(rows) == 0 {
		return domain.Tag{}, domainerrors.NotFoundf("%s tag %d not found", s.scope, id)
	}
	return remote.Decode[domain.Tag](rows[0])
}

// Update changes a tag definition. The type and the permissible values of a tag
// are locked while any entity carries it.
func (s *TagService) Update(ctx context.Context, id int64, changes remote.Row, opts ...mutation.Option) (domain.Tag, error) {
	_, typeChange := changes["tag_type"]
	_, valuesChange := changes["tag_values"]
	if typeChange || valuesChange {
		current, err := s.Get(ctx, id)
		if err != nil {
			return domain.Tag{}, err
		}
		if current.InUse() {
			return domain.Tag{}, domainerrors.Conflictf(
				"Tag %q is used by %d items; its type and values cannot change", current.Name, current.RelationshipsCount)
		}
		typ := current.Type
		if v, ok := changes["tag_type"].(string); ok {
			typ = domain.TagType(v)
		}
		values := []string(current.Values)
		if valuesChange {
			values = stringsOf(changes["tag_values"])
		}
		if err := checkTagValues(typ, values); err != nil {
			return domain.Tag{}, err
		}
	}
	return mutation.Decoded[domain.Tag](s.Service.Update(ctx, id, changes, opts...))
}

// Delete removes an unused tag.
func (s *TagService) Delete(ctx context.Context, id int64, opts ...mutation.Option) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.InUse() {
		return domainerrors.Conflictf("Cannot delete tag that is in use by %d items", current.RelationshipsCount)
	}
	return s.Service.Delete(ctx, id, opts...)
}

// Selector opens a tag selector for one product or inventory item, starting from
// its stored tags.
func (s *TagService) Selector(ctx context.Context, entityID int64) (*relation.Selector, error) {
	if domain.IsDraftID(entityID) {
		return nil, domainerrors.Conflictf("%s is still being saved", s.scope)
	}
	return relation.LoadSelector(ctx, s.engine, s.runner.Cache(), entityID, s.owners, s.tags.Key())
}

// Resolve returns the tag definitions for ids, failing on unknown ids.
func (s *TagService) Resolve(ctx context.Context, ids ...int64) (map[int64]domain.Tag, error) {
	all, err := s.tags.Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	byID := make(map[int64]domain.Tag, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	out := make(map[int64]domain.Tag, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, domainerrors.NotFoundf("%s tag %d not found", s.scope, id)
		}
		out[id] = t
	}
	return out, nil
}

func stringsOf(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case domain.StringList:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

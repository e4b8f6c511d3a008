package relation

import (
	"context"
	"fmt"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/remote"
)

// EdgeStore reads and writes the tag edges of one entity kind.
type EdgeStore interface {
	Table() string
	Load(ctx context.Context, entityID int64) (Selection, error)
	Add(ctx context.Context, entityID int64, e Edge) error
	Remove(ctx context.Context, entityID, tagID int64) error
	SetValue(ctx context.Context, entityID, tagID int64, value string) error
}

// TableEdges stores edges in a relationship table of the remote store.
type TableEdges struct {
	store remote.Store
	table string
	owner string
}

var _ EdgeStore = (*TableEdges)(nil)

// NewTableEdges returns the edge store of scope.
func NewTableEdges(store remote.Store, scope domain.TagScope) *TableEdges {
	return &TableEdges{store: store, table: scope.RelationshipTable(), owner: scope.OwnerColumn()}
}

// Table returns the relationship table name.
func (t *TableEdges) Table() string { return t.table }

// Load returns the current selection of entityID.
func (t *TableEdges) Load(ctx context.Context, entityID int64) (Selection, error) {
	rows, err := t.store.Select(ctx, t.table, remote.Where(remote.Eq(t.owner, entityID)))
	if err != nil {
		return nil, fmt.Errorf("load %s edges of %d: %w", t.table, entityID, err)
	}
	sel := make(Selection, len(rows))
	for _, row := range rows {
		tagID, ok := row.Int("tag_id")
		if !ok {
			continue
		}
		value, _ := row["value"].(string)
		sel[tagID] = value
	}
	return sel, nil
}

// Add inserts an edge.
func (t *TableEdges) Add(ctx context.Context, entityID int64, e Edge) error {
	_, err := t.store.Insert(ctx, t.table, remote.Row{
		t.owner:  entityID,
		"tag_id": e.TagID,
		"value":  nullable(e.Value),
	})
	return err
}

// Remove deletes an edge. Removing an edge that does not exist succeeds.
func (t *TableEdges) Remove(ctx context.Context, entityID, tagID int64) error {
	_, err := t.store.DeleteWhere(ctx, t.table, remote.Row{t.owner: entityID, "tag_id": tagID})
	return err
}

// SetValue changes the value of an existing edge in place.
func (t *TableEdges) SetValue(ctx context.Context, entityID, tagID int64, value string) error {
	rows, err := t.store.UpdateWhere(ctx, t.table,
		remote.Row{t.owner: entityID, "tag_id": tagID},
		remote.Row{"value": nullable(value)})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return remote.NotFound("update", t.table, tagID)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

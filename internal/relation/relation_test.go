package relation

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectr/collectr/internal/cache"
	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/remote/remotetest"
	"github.com/collectr/collectr/internal/remote/sqlstore"
)

const (
	tagA int64 = 1
	tagB int64 = 2
	tagC int64 = 3
)

func TestDiff_ValueChangeIsNotRemoveAndAdd(t *testing.T) {
	initial := Selection{tagA: "", tagB: "foo"}
	desired := Selection{tagB: "bar", tagC: ""}

	ch := Diff(initial, desired)

	assert.Equal(t, []Edge{{TagID: tagC}}, ch.Add)
	assert.Equal(t, []Edge{{TagID: tagA}}, ch.Remove)
	assert.Equal(t, []ValueChange{{TagID: tagB, From: "foo", To: "bar"}}, ch.Update)
	assert.Equal(t, 3, ch.Len())
	assert.Equal(t, desired, initial.Apply(ch))
}

func TestDiff_Idempotent(t *testing.T) {
	tests := []Selection{
		{},
		{tagA: ""},
		{tagA: "true", tagB: "x", tagC: ""},
	}
	for _, sel := range tests {
		assert.True(t, Diff(sel, sel).Empty())
		assert.True(t, Diff(sel, sel.Clone()).Empty())
	}
	assert.True(t, Diff(nil, nil).Empty())
}

func TestDiff_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	build := func(ids []int64) Selection {
		sel := make(Selection)
		for _, id := range ids {
			sel[id] = ""
		}
		return sel
	}
	initialIDs := []int64{1, 2, 3, 4, 5, 6}
	desiredIDs := []int64{4, 5, 6, 7, 8}
	want := Diff(build(initialIDs), build(desiredIDs))

	for i := 0; i < 20; i++ {
		rng.Shuffle(len(initialIDs), func(a, b int) { initialIDs[a], initialIDs[b] = initialIDs[b], initialIDs[a] })
		rng.Shuffle(len(desiredIDs), func(a, b int) { desiredIDs[a], desiredIDs[b] = desiredIDs[b], desiredIDs[a] })
		assert.Equal(t, want, Diff(build(initialIDs), build(desiredIDs)))
	}
	assert.Len(t, want.Add, 2)
	assert.Len(t, want.Remove, 3)
}

func rowID(t *testing.T, row remote.Row) int64 {
	t.Helper()
	id, ok := row.ID()
	require.True(t, ok)
	return id
}

type fixture struct {
	db     *sqlstore.Store
	spy    *remotetest.Store
	engine *Engine
	events *events.Recorder
	itemID int64
	tags   map[string]domain.Tag
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	product, err := db.Insert(ctx, "products", remote.Row{"product_title": "Zelda", "product_type": "Game"})
	require.NoError(t, err)
	item, err := db.Insert(ctx, "inventory", remote.Row{"product_id": rowID(t, product), "inventory_status": "Normal"})
	require.NoError(t, err)

	tags := map[string]domain.Tag{}
	for _, def := range []struct {
		name   string
		typ    domain.TagType
		values []string
	}{
		{"boxed", domain.TagBoolean, nil},
		{"grade", domain.TagSet, []string{"A", "B"}},
		{"note", domain.TagText, nil},
	} {
		row, err := db.Insert(ctx, "inventory_tags", remote.Row{"name": def.name, "tag_type": string(def.typ), "tag_values": def.values})
		require.NoError(t, err)
		tags[def.name] = domain.Tag{ID: rowID(t, row), Name: def.name, Type: def.typ, Values: def.values}
	}

	spy := remotetest.Wrap(db)
	rec := &events.Recorder{}
	return &fixture{
		db:     db,
		spy:    spy,
		engine: NewEngine(NewTableEdges(spy, domain.ScopeInventory), logger.Discard().Logger, nil, rec),
		events: rec,
		itemID: rowID(t, item),
		tags:   tags,
	}
}

func (f *fixture) stored(t *testing.T) Selection {
	t.Helper()
	sel, err := f.engine.Edges().Load(context.Background(), f.itemID)
	require.NoError(t, err)
	return sel
}

func TestEngine_ApplyAll(t *testing.T) {
	f := newFixture(t)
	boxed, grade, note := f.tags["boxed"], f.tags["grade"], f.tags["note"]

	res, err := f.engine.Apply(context.Background(), f.itemID, Diff(nil, Selection{boxed.ID: "true", grade.ID: "A"}))
	require.NoError(t, err)
	assert.Len(t, res.Applied.Add, 2)
	assert.Equal(t, Selection{boxed.ID: "true", grade.ID: "A"}, f.stored(t))

	ch := Diff(f.stored(t), Selection{grade.ID: "B", note.ID: "mint"})
	_, err = f.engine.Apply(context.Background(), f.itemID, ch)
	require.NoError(t, err)
	assert.Equal(t, Selection{grade.ID: "B", note.ID: "mint"}, f.stored(t))

	var ops []string
	for _, c := range f.spy.Writes()[2:] {
		ops = append(ops, c.Op)
	}
	assert.ElementsMatch(t, []string{remotetest.OpDeleteWhere, remotetest.OpUpdateWhere, remotetest.OpInsert}, ops,
		"value change updates the edge in place")

	evs := f.events.OfType(events.EventEdgesApplied)
	require.Len(t, evs, 2)
	assert.Equal(t, 1, evs[1].Data.(events.EdgesEventData).Updated)
}

func TestEngine_PartialFailureIsReportedNotRolledBack(t *testing.T) {
	f := newFixture(t)
	boxed, grade, note := f.tags["boxed"], f.tags["grade"], f.tags["note"]
	_, err := f.engine.Apply(context.Background(), f.itemID, Diff(nil, Selection{boxed.ID: "true"}))
	require.NoError(t, err)

	f.spy.FailWhen(remotetest.OpInsert, "", remotetest.HasTag(grade.ID), remotetest.Rejected(remote.ViolationForeignKey))
	ch := Diff(Selection{boxed.ID: "true"}, Selection{grade.ID: "A", note.ID: "x"})
	res, err := f.engine.Apply(context.Background(), f.itemID, ch)

	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrPartialBatch))
	failed := Failures(err)
	require.Len(t, failed, 1)
	assert.Equal(t, OpAdd, failed[0].Op)
	assert.Equal(t, grade.ID, failed[0].TagID)
	assert.Equal(t, res.Failed, failed)

	assert.Equal(t, Selection{note.ID: "x"}, f.stored(t), "applied edges stay applied")
}

func TestEngine_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Apply(context.Background(), f.itemID, Changes{})
	require.NoError(t, err)
	assert.True(t, res.Applied.Empty())
	assert.Empty(t, f.spy.Calls())
}

func TestTableEdges_SetValueMissingEdge(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Edges().SetValue(context.Background(), f.itemID, f.tags["grade"].ID, "A")
	v, ok := remote.ViolationOf(err)
	require.True(t, ok)
	assert.Equal(t, remote.ViolationNotFound, v)
}

func TestSelector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxed, grade, note := f.tags["boxed"], f.tags["grade"], f.tags["note"]

	c := cache.New(f.db, cache.Options{Logger: logger.Discard().Logger})
	items := cache.NewCollection[domain.InventoryView](c, "inventory", "view_inventory", remote.Query{})
	_, err := items.Load(ctx)
	require.NoError(t, err)

	sel, err := LoadSelector(ctx, f.engine, c, f.itemID, "inventory")
	require.NoError(t, err)
	assert.False(t, sel.HasChanges())

	sel.Toggle(boxed)
	require.NoError(t, sel.SetValue(grade, "A"))
	assert.Error(t, sel.SetValue(grade, "Z"))
	assert.True(t, sel.HasChanges())
	assert.Equal(t, Selection{boxed.ID: domain.BooleanTagValue, grade.ID: "A"}, sel.Selected())

	require.NoError(t, sel.ApplyChanges(ctx))
	assert.False(t, sel.HasChanges())

	rows, _ := items.Get()
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []string{"boxed", "grade=A"}, []string(rows[0].Tags))

	// Partial failure: the failed edge stays pending, the rest becomes baseline.
	sel.Deselect(boxed.ID)
	require.NoError(t, sel.SetValue(note, "mint"))
	f.spy.FailWhen(remotetest.OpInsert, "", remotetest.HasTag(note.ID), remotetest.Unreachable())

	err = sel.ApplyChanges(ctx)
	require.Error(t, err)
	assert.Equal(t, Changes{Add: []Edge{{TagID: note.ID, Value: "mint"}}}, sel.Changes())

	f.spy.Heal()
	require.NoError(t, sel.ApplyChanges(ctx))
	assert.False(t, sel.HasChanges())
	assert.Equal(t, Selection{grade.ID: "A", note.ID: "mint"}, f.stored(t))

	sel.Toggle(grade)
	sel.Reset()
	assert.False(t, sel.HasChanges())

	require.NoError(t, sel.Reload(ctx))
	assert.False(t, sel.HasChanges())
}

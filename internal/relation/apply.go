package relation

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/metrics"
)

// maxConcurrentEdges bounds the edge writes in flight for one batch.
const maxConcurrentEdges = 8

// EdgeOp names an edge operation.
type EdgeOp string

// Edge operations.
const (
	OpAdd    EdgeOp = "add"
	OpRemove EdgeOp = "remove"
	OpUpdate EdgeOp = "update"
)

// EdgeFailure is one edge operation the store did not apply.
type EdgeFailure struct {
	Op      EdgeOp `json:"op"`
	TagID   int64  `json:"tag_id"`
	Value   string `json:"value,omitempty"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Result reports what a batch applied.
type Result struct {
	Applied Changes
	Failed  []EdgeFailure
}

// Engine applies edge batches.
type Engine struct {
	edges   EdgeStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	emitter events.Emitter
}

// NewEngine creates an engine writing to edges.
func NewEngine(edges EdgeStore, logger *slog.Logger, m *metrics.Metrics, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Engine{
		edges:   edges,
		logger:  logger.With("component", "relation", "table", edges.Table()),
		metrics: m,
		emitter: emitter,
	}
}

// Edges returns the edge store.
func (e *Engine) Edges() EdgeStore { return e.edges }

// Apply issues every operation of ch at once and waits for all of them. Applied
// edges are never undone: when some operations fail the error is a PARTIAL_BATCH
// whose details list the failed operations, and the caller recovers by diffing
// again against reloaded state.
func (e *Engine) Apply(ctx context.Context, entityID int64, ch Changes) (Result, error) {
	if ch.Empty() {
		return Result{}, nil
	}

	type outcome struct {
		op  EdgeOp
		idx int
		err error
	}
	outcomes := make([]outcome, 0, ch.Len())
	for i := range ch.Add {
		outcomes = append(outcomes, outcome{op: OpAdd, idx: i})
	}
	for i := range ch.Remove {
		outcomes = append(outcomes, outcome{op: OpRemove, idx: i})
	}
	for i := range ch.Update {
		outcomes = append(outcomes, outcome{op: OpUpdate, idx: i})
	}

	// Operations report through their slot; the group only waits.
	var g errgroup.Group
	g.SetLimit(maxConcurrentEdges)
	for i := range outcomes {
		o := &outcomes[i]
		g.Go(func() error {
			switch o.op {
			case OpAdd:
				o.err = e.edges.Add(ctx, entityID, ch.Add[o.idx])
			case OpRemove:
				o.err = e.edges.Remove(ctx, entityID, ch.Remove[o.idx].TagID)
			case OpUpdate:
				u := ch.Update[o.idx]
				o.err = e.edges.SetValue(ctx, entityID, u.TagID, u.To)
			}
			e.metrics.ObserveEdge(e.edges.Table(), string(o.op), o.err == nil)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for _, o := range outcomes {
		switch o.op {
		case OpAdd:
			edge := ch.Add[o.idx]
			if o.err == nil {
				res.Applied.Add = append(res.Applied.Add, edge)
			} else {
				res.Failed = append(res.Failed, failure(OpAdd, edge.TagID, edge.Value, o.err))
			}
		case OpRemove:
			edge := ch.Remove[o.idx]
			if o.err == nil {
				res.Applied.Remove = append(res.Applied.Remove, edge)
			} else {
				res.Failed = append(res.Failed, failure(OpRemove, edge.TagID, edge.Value, o.err))
			}
		case OpUpdate:
			u := ch.Update[o.idx]
			if o.err == nil {
				res.Applied.Update = append(res.Applied.Update, u)
			} else {
				res.Failed = append(res.Failed, failure(OpUpdate, u.TagID, u.To, o.err))
			}
		}
	}

	e.emitter.Emit(events.New(events.EventEdgesApplied, events.EdgesEventData{
		Table:    e.edges.Table(),
		EntityID: entityID,
		Added:    len(res.Applied.Add),
		Removed:  len(res.Applied.Remove),
		Updated:  len(res.Applied.Update),
		Failed:   len(res.Failed),
	}))

	if len(res.Failed) > 0 {
		e.logger.Warn("tag changes partially applied",
			"entity_id", entityID,
			"applied", res.Applied.Len(),
			"failed", len(res.Failed),
		)
		return res, domainerrors.PartialBatch(
			fmt.Sprintf("%d of %d tag changes failed", len(res.Failed), ch.Len()), res.Failed)
	}

	e.logger.Info("tag changes applied",
		"entity_id", entityID,
		"added", len(res.Applied.Add),
		"removed", len(res.Applied.Remove),
		"updated", len(res.Applied.Update),
	)
	return res, nil
}

func failure(op EdgeOp, tagID int64, value string, err error) EdgeFailure {
	return EdgeFailure{Op: op, TagID: tagID, Value: value, Message: err.Error(), Err: err}
}

// Failures returns the failed operations carried by a PARTIAL_BATCH error.
func Failures(err error) []EdgeFailure {
	var de *domainerrors.Error
	if !domainerrors.As(err, &de) || de.Code != domainerrors.CodePartialBatch {
		return nil
	}
	failed, _ := de.Details.([]EdgeFailure)
	return failed
}

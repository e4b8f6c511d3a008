package mutation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/collectr/collectr/internal/cache"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/id"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/remote"
)

// RetryPolicy controls how transport failures are retried. Rejections are never
// retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Runner executes mutations against the cache and the remote store.
type Runner struct {
	cache   *cache.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	emitter events.Emitter
	retry   RetryPolicy
}

// NewRunner creates a Runner.
func NewRunner(c *cache.Store, logger *slog.Logger, m *metrics.Metrics, emitter events.Emitter, policy RetryPolicy) *Runner {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Runner{
		cache:   c,
		logger:  logger.With("component", "mutation"),
		metrics: m,
		emitter: emitter,
		retry:   policy,
	}
}

// Cache returns the cache the runner patches.
func (r *Runner) Cache() *cache.Store { return r.cache }

// Emitter returns the event sink notifications go to.
func (r *Runner) Emitter() events.Emitter { return r.emitter }

// Op describes one mutation.
type Op[R any] struct {
	Entity string
	Name   string
	ID     int64

	// Optimistic patches are applied before the remote call and undone if it fails.
	Optimistic []Target
	// Remote performs the write. It may be called again after a transport failure.
	Remote func(ctx context.Context) (R, error)
	// Post returns patches applied once Remote succeeded.
	Post func(result R) []Target
	// Refetch lists keys reloaded from the store once Remote succeeded.
	Refetch []cache.Key

	// Background marks low-stakes writes: failures are logged but not announced.
	Background bool
	// Success is announced when set and the op is not in the background.
	Success string
}

// Run executes op: snapshot the targeted keys, apply the optimistic patches, call
// the remote store, then apply the post-success patches and refetch, or restore
// the snapshot. The returned error is classified (see Classify).
func Run[R any](ctx context.Context, r *Runner, op Op[R]) (R, error) {
	corr := id.Correlation()
	log := r.logger.With("entity", op.Entity, "op", op.Name, "correlation_id", corr)
	if op.ID != 0 {
		log = log.With("id", op.ID)
	}
	done := r.metrics.MutationStarted()
	defer done()
	start := time.Now()

	keys := keysOf(op.Optimistic)
	snap := r.cache.Snapshot(keys...)
	Apply(r.cache, op.Optimistic...)
	applied := r.cache.Generations(keys...)

	result, err := callWithRetry(ctx, r.retry, op.Remote)
	if err != nil {
		// Keys written while the call was in flight may hold confirmed writes of
		// other mutations that the snapshot predates.
		for _, key := range r.cache.Rollback(snap, applied) {
			r.resync(ctx, log, key)
		}
		classified := Classify(err)

		outcome := metrics.OutcomeRejected
		if remote.IsUnreachable(err) {
			outcome = metrics.OutcomeUnreachable
		}
		r.metrics.ObserveMutation(op.Entity, op.Name, outcome, time.Since(start))

		if op.Background {
			log.Debug("background mutation failed", "error", err)
		} else {
			log.Warn("mutation rolled back", "error", err)
		}
		r.emitter.Emit(events.New(events.EventMutationRolledBack, events.MutationEventData{
			Entity: op.Entity, Op: op.Name, ID: op.ID, Error: classified.Error(),
		}).WithCorrelation(corr))
		if !op.Background {
			r.emitter.Emit(events.NewNotification(events.LevelError, Message(classified)).WithCorrelation(corr))
		}
		var zero R
		return zero, classified
	}

	if op.Post != nil {
		Apply(r.cache, op.Post(result)...)
	}
	for _, key := range op.Refetch {
		if err := r.cache.Refetch(ctx, key); err != nil {
			log.Warn("refetch after mutation failed", "key", key, "error", err)
		}
	}

	r.metrics.ObserveMutation(op.Entity, op.Name, metrics.OutcomeSuccess, time.Since(start))
	log.Info("mutation confirmed", "duration", time.Since(start))
	r.emitter.Emit(events.New(events.EventMutationSucceeded, events.MutationEventData{
		Entity: op.Entity, Op: op.Name, ID: op.ID,
	}).WithCorrelation(corr))
	if op.Success != "" && !op.Background {
		r.emitter.Emit(events.NewNotification(events.LevelSuccess, op.Success).WithCorrelation(corr))
	}
	return result, nil
}

// resync reloads key, or marks it stale when it cannot be reloaded now.
func (r *Runner) resync(ctx context.Context, log *slog.Logger, key cache.Key) {
	if _, ok := r.cache.Descriptor(key); !ok {
		r.cache.Invalidate(key)
		return
	}
	if err := r.cache.Refetch(ctx, key); err != nil {
		log.Warn("resync after rollback failed", "key", key, "error", err)
	}
}

// Exec runs an op that has no result.
func Exec(ctx context.Context, r *Runner, op Op[struct{}]) error {
	_, err := Run(ctx, r, op)
	return err
}

func callWithRetry[R any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (R, error)) (R, error) {
	var result R
	if policy.Attempts <= 0 {
		return fn(ctx)
	}

	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(policy.Attempts), retry.NewFibonacci(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		// Domain errors carry their own recovery, e.g. a half-written saga.
		var de *domainerrors.Error
		if remote.IsUnreachable(err) && !errors.As(err, &de) {
			return retry.RetryableError(err)
		}
		return err
	})
	return result, err
}

// Classify converts a failure into a domain error: constraint violations become
// REMOTE_REJECTED with a human-readable cause, transport failures become
// REMOTE_UNREACHABLE, and domain errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if remote.IsUnreachable(err) {
		return domainerrors.RemoteUnreachable("The server could not be reached. Please try again.", err)
	}

	var re *remote.Error
	if errors.As(err, &re) {
		if re.Violation == remote.ViolationNotFound {
			return domainerrors.NotFound(re.Violation.Cause()).WithCause(err)
		}
		msg := re.Violation.Cause()
		if msg == "" {
			msg = re.Message
		}
		if msg == "" {
			msg = "The change was rejected."
		}
		return domainerrors.RemoteRejected(msg, err)
	}
	return domainerrors.Wrap(err, domainerrors.CodeInternal, "mutation failed")
}

// Message returns the user-facing text of a classified error.
func Message(err error) string {
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

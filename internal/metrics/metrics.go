// Package metrics exposes Prometheus collectors for mutations, relationship edges,
// cache refetches and status transitions. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collectr"

// Mutation outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeRolledBack  = "rolled_back"
	OutcomeRejected    = "rejected"
	OutcomeUnreachable = "unreachable"
	OutcomeInvalid     = "invalid"
)

// Refetch outcomes.
const (
	RefetchApplied   = "applied"
	RefetchDiscarded = "discarded"
	RefetchFailed    = "failed"
)

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
	edges            *prometheus.CounterVec
	refetches        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	externalChanges  prometheus.Counter
}

// New creates the collectors and registers them, together with the Go runtime and
// process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutations by entity, operation and outcome.",
		}, []string{"entity", "op", "outcome"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time from optimistic patch to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "op"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Mutations awaiting the remote store.",
		}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationship_edges_total",
			Help:      "Tag relationship edge operations by table, operation and result.",
		}, []string{"table", "op", "result"}),
		refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refetches_total",
			Help:      "Collection refetches by cache key and outcome.",
		}, []string{"key", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Inventory status transitions by source, target and result.",
		}, []string{"from", "to", "result"}),
		externalChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_changes_total",
			Help:      "Remote changes made by other clients that triggered a resync.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations,
		m.mutationDuration,
		m.inflight,
		m.edges,
		m.refetches,
		m.transitions,
		m.externalChanges,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MutationStarted marks a mutation as in flight. Call the returned function when
// it settles.
func (m *Metrics) MutationStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// ObserveMutation records a settled mutation.
func (m *Metrics) ObserveMutation(entity, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, op, outcome).Inc()
	m.mutationDuration.WithLabelValues(entity, op).Observe(d.Seconds())
}

// ObserveEdge records one relationship edge operation.
func (m *Metrics) ObserveEdge(table, op string, ok bool) {
	if m == nil {
		return
	}
	m.edges.WithLabelValues(table, op, result(ok)).Inc()
}

// ObserveRefetch records a collection refetch.
func (m *Metrics) ObserveRefetch(key, outcome string) {
	if m == nil {
		return
	}
	m.refetches.WithLabelValues(key, outcome).Inc()
}

// ObserveTransition records a status transition attempt.
func (m *Metrics) ObserveTransition(from, to string, ok bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result(ok)).Inc()
}

// ObserveExternalChange records a resync caused by another client.
func (m *Metrics) ObserveExternalChange() {
	if m == nil {
		return
	}
	m.externalChanges.Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

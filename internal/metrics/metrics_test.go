package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	done := m.MutationStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))

	m.ObserveMutation("inventory", "update", OutcomeRolledBack, 20*time.Millisecond)
	m.ObserveEdge("inventory_tag_relationships", "add", false)
	m.ObserveRefetch("inventory", RefetchDiscarded)
	m.ObserveTransition("For Sale", "Sold", true)
	m.ObserveExternalChange()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("inventory", "update", OutcomeRolledBack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edges.WithLabelValues("inventory_tag_relationships", "add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refetches.WithLabelValues("inventory", RefetchDiscarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("For Sale", "Sold", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.externalChanges))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.MutationStarted()()
	m.ObserveMutation("product", "create", OutcomeSuccess, time.Second)
	m.ObserveEdge("t", "add", true)
	m.ObserveRefetch("k", RefetchApplied)
	m.ObserveTransition("a", "b", true)
	m.ObserveExternalChange()
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveMutation("product", "create", OutcomeSuccess, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `collectr_mutations_total{entity="product",op="create",outcome="success"} 1`))
	assert.Contains(t, body, "go_goroutines")
}

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_WorkflowCounters(t *testing.T) {
	m := New("lease-test")

	m.PaymentsGenerated(12)
	m.PaymentsDeleted(5)
	m.OverlapConflict()
	m.ScheduleSyncFailed("generate")
	m.SchedulerRun("overdue", nil)
	m.SchedulerRun("overdue", errors.New("boom"))

	assert.Equal(t, 12.0, testutil.ToFloat64(m.paymentsGenerated))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.paymentsDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overlapConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncFailures.WithLabelValues("generate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.schedulerRuns.WithLabelValues("overdue", "failed")))
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := New("lease-test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/contracts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contracts/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/contracts/{id}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), `service="lease-test"`)
}

// Package metrics exposes Prometheus counters for HTTP traffic and the
// lease workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances (tests) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	paymentsGenerated prometheus.Counter
	paymentsDeleted   prometheus.Counter
	overlapConflicts  prometheus.Counter
	syncFailures      *prometheus.CounterVec
	overdueMarked     prometheus.Counter
	schedulerRuns     *prometheus.CounterVec
}

func New(service string) *Metrics {
	constLabels := prometheus.Labels{"service": service}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		paymentsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lease_payments_generated_total",
			Help:        "Payment rows inserted by schedule generation",
			ConstLabels: constLabels,
		}),
		paymentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lease_payments_deleted_total",
			Help:        "Pending payment rows removed after a contract was shortened",
			ConstLabels: constLabels,
		}),
		overlapConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lease_overlap_conflicts_total",
			Help:        "Contract saves rejected for overlapping an active contract",
			ConstLabels: constLabels,
		}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lease_schedule_sync_failures_total",
			Help:        "Contract saves whose payment rows could not be brought in line",
			ConstLabels: constLabels,
		}, []string{"op"}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lease_contracts_with_overdue_total",
			Help:        "Contracts that had payments flipped to overdue by the scheduler",
			ConstLabels: constLabels,
		}),
		schedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "lease_scheduler_runs_total",
			Help:        "Background sweeps by job and outcome",
			ConstLabels: constLabels,
		}, []string{"job", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.paymentsGenerated,
		m.paymentsDeleted,
		m.overlapConflicts,
		m.syncFailures,
		m.overdueMarked,
		m.schedulerRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// =============================================================================
// WORKFLOW COUNTERS (lease.Recorder interface)
// =============================================================================

func (m *Metrics) PaymentsGenerated(n int) { m.paymentsGenerated.Add(float64(n)) }
func (m *Metrics) PaymentsDeleted(n int)   { m.paymentsDeleted.Add(float64(n)) }
func (m *Metrics) OverlapConflict()        { m.overlapConflicts.Inc() }

func (m *Metrics) ScheduleSyncFailed(op string) {
	m.syncFailures.WithLabelValues(op).Inc()
}

// OverdueMarked counts contracts touched by one overdue sweep.
func (m *Metrics) OverdueMarked(contracts int) { m.overdueMarked.Add(float64(contracts)) }

// SchedulerRun records the outcome of one sweep.
func (m *Metrics) SchedulerRun(job string, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	m.schedulerRuns.WithLabelValues(job, status).Inc()
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// route pattern keeps label cardinality bounded
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		code := strconv.Itoa(status)
		m.requests.WithLabelValues(r.Method, path, code).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

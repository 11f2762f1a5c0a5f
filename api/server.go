/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Structured request logging (zap)
  4. Metrics:    Prometheus request counter and latency histogram
  5. Recoverer:  Panic recovery (500 instead of crash)
  6. CORS:       Cross-origin requests for the rental-management UI

ROUTE GROUPS:
  /api/contracts/*      Contract lifecycle and payment rows
  /api/payments/*       Payment status
  /api/properties/*     Occupancy
  /api/index-values/*   Published index series
  /api/functions/*      Generate-payments function contract
  /api/scheduler/*      Overdue sweep history
  /api/scenarios/*      Demo data (resets the database)
  /healthz              Liveness + database ping
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/rentmate/lease-engine/internal/metrics"
)

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = h.Logger
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", h.CreateContract)
			r.Get("/{id}", h.GetContract)
			r.Put("/{id}", h.UpdateContract)
			r.Post("/{id}/options/exercise", h.ExerciseOption)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments/generate", h.GenerateRange)
		})

		// Payment routes
		r.Post("/payments/{id}/paid", h.MarkPaid)

		// Form helpers
		r.Post("/overlap/check", h.CheckOverlap)
		r.Post("/indexation/resolve", h.ResolveIndexation)
		r.Get("/defaults/end-date", h.DefaultEndDate)

		// Index series
		r.Route("/index-values", func(r chi.Router) {
			r.Get("/{type}", h.ListIndexValues)
			r.Put("/{type}", h.SetIndexValue)
		})

		// Property routes
		r.Route("/properties", func(r chi.Router) {
			r.Get("/{id}", h.GetProperty)
			r.Get("/{id}/contracts", h.ListPropertyContracts)
			r.Post("/{id}/occupancy/sync", h.SyncOccupancy)
		})

		// Function contract
		r.Post("/functions/generate-payments", h.GeneratePayments)

		// Scheduler routes
		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/runs", h.ListSchedulerRuns)
			r.Post("/run", h.TriggerSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				logger.Error("HTTP request failed", fields...)
			case status >= 400:
				logger.Warn("HTTP request rejected", fields...)
			default:
				logger.Info("HTTP request completed", fields...)
			}
		})
	}
}

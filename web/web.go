// Package web provides the HTTP API for the execution gateway.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/execgate/execgate/adapters/metrics"
	"github.com/execgate/execgate/app"
)

// Identity headers set by the authenticating edge in front of this
// service. Requests without X-Tenant-ID are rejected.
const (
	HeaderTenantID = "X-Tenant-Id"
	HeaderTier     = "X-Tenant-Tier"
	HeaderTester   = "X-Tenant-Tester"
)

// Handler provides the API endpoints.
type Handler struct {
	executions *app.ExecutionService
	logger     zerolog.Logger
	metrics    *metrics.Collector
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Executions *app.ExecutionService
	Logger     zerolog.Logger
	Metrics    *metrics.Collector // optional
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		executions: deps.Executions,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Router returns the main HTTP router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health endpoints (no identity required)
	r.Get("/health", h.Liveness)
	r.Get("/health/live", h.Liveness)
	r.Get("/health/ready", h.Liveness)

	if h.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/version", Version)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/executions", h.GetExecutions)
		r.Delete("/executions/cache", h.InvalidateCache)
		r.Get("/quota", h.QuotaStatus)
	})

	return r
}

// Liveness returns a simple liveness check.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version returns the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": "dev",
		"service": "execgate",
	})
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

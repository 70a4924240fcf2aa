// Package metrics provides Prometheus metrics collection for execgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for execgate.
type Collector struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheEvents *prometheus.CounterVec

	// Limit metrics
	RateLimitRejections *prometheus.CounterVec
	QuotaRejections     *prometheus.CounterVec

	// Upstream metrics
	UpstreamFetches  *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram

	// Single-flight metrics
	FlightShared   prometheus.Counter
	FlightTimeouts prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a collector registered on the given registerer
// (tests pass their own registry to avoid duplicate registration).
func NewWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "requests_total",
				Help:      "Total execution-history requests processed",
			},
			[]string{"tier", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "execgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"tier"},
		),
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "cache_events_total",
				Help:      "Cache lookups by outcome (hit, miss, stale_serve, bypass)",
			},
			[]string{"event"},
		),
		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "rate_limit_rejections_total",
				Help:      "Requests denied by the per-minute rate limiter",
			},
			[]string{"tier"},
		),
		QuotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "quota_rejections_total",
				Help:      "Requests denied by the daily quota ledger",
			},
			[]string{"tier", "activity"},
		),
		UpstreamFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "upstream_fetches_total",
				Help:      "Upstream fetch attempts by result (success, transient_error, permanent_error)",
			},
			[]string{"result"},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "execgate",
				Name:      "upstream_duration_seconds",
				Help:      "Upstream fetch duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		FlightShared: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "flight_shared_total",
				Help:      "Requests served by another caller's in-flight fetch",
			},
		),
		FlightTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "flight_timeouts_total",
				Help:      "Followers that timed out waiting for a leader fetch",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "config_reloads_total",
				Help:      "Successful configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "execgate",
				Name:      "config_reload_errors_total",
				Help:      "Failed configuration reloads",
			},
		),
	}
}

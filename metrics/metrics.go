// Package metrics exposes the facade's Prometheus instrumentation: router
// decision counters, cursor-registry gauges, and per-operation latency
// histograms.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a Registry.
type Config struct {
	// Namespace prefixes every metric name (default "mongofacade").
	Namespace string

	EnableProcessMetrics bool
	EnableRuntimeMetrics bool

	// OpDurationBuckets are the histogram buckets for operation latency.
	OpDurationBuckets []float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:            "mongofacade",
		EnableProcessMetrics: true,
		EnableRuntimeMetrics: true,
		OpDurationBuckets:    []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}
}

// Registry owns every metric this facade reports.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	routerDecisionsTotal *prometheus.CounterVec
	routerCacheHits      prometheus.Counter
	routerCacheMisses    prometheus.Counter

	cursorsOpen   prometheus.Gauge
	cursorsOpened prometheus.Counter
	cursorsClosed *prometheus.CounterVec

	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
}

var (
	global     *Registry
	globalOnce sync.Once
)

// NewRegistry builds a Registry and registers every metric with its own
// prometheus.Registry (not the global DefaultRegisterer, so a caller
// running several facade instances in one process never collides).
func NewRegistry(cfg Config) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{config: cfg, registry: reg}

	r.routerDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "router", Name: "decisions_total",
		Help: "Routing decisions by chosen backend and triggering reason.",
	}, []string{"backend", "reason"})

	r.routerCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "router", Name: "cache_hits_total",
		Help: "Decision cache hits.",
	})
	r.routerCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "router", Name: "cache_misses_total",
		Help: "Decision cache misses.",
	})

	r.cursorsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "cursor", Name: "open",
		Help: "Cursors currently registered.",
	})
	r.cursorsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "cursor", Name: "opened_total",
		Help: "Cursors created since process start.",
	})
	r.cursorsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "cursor", Name: "closed_total",
		Help: "Cursors closed, by reason.",
	}, []string{"reason"})

	r.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "op", Name: "duration_seconds",
		Help:    "Operation latency by op name and backend.",
		Buckets: cfg.OpDurationBuckets,
	}, []string{"op", "backend"})
	r.opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "op", Name: "errors_total",
		Help: "Operation errors by op name and error kind.",
	}, []string{"op", "kind"})

	reg.MustRegister(
		r.routerDecisionsTotal, r.routerCacheHits, r.routerCacheMisses,
		r.cursorsOpen, r.cursorsOpened, r.cursorsClosed,
		r.opDuration, r.opErrors,
	)
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}
	return r
}

// Global returns a process-wide Registry, created on first use.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry(DefaultConfig()) })
	return global
}

// PrometheusRegistry returns the underlying prometheus.Registry, for
// mounting a /metrics handler.
func (r *Registry) PrometheusRegistry() *prometheus.Registry { return r.registry }

// ObserveRouterDecision records one router.Decision outcome.
func (r *Registry) ObserveRouterDecision(backend, reason string) {
	r.routerDecisionsTotal.WithLabelValues(backend, reason).Inc()
}

func (r *Registry) ObserveRouterCacheHit()  { r.routerCacheHits.Inc() }
func (r *Registry) ObserveRouterCacheMiss() { r.routerCacheMisses.Inc() }

// CursorOpened records a newly registered cursor.
func (r *Registry) CursorOpened() {
	r.cursorsOpened.Inc()
	r.cursorsOpen.Inc()
}

// CursorClosed records a cursor leaving the registry, tagged with why.
func (r *Registry) CursorClosed(reason string) {
	r.cursorsClosed.WithLabelValues(reason).Inc()
	r.cursorsOpen.Dec()
}

// SetCursorsOpen overwrites the open-cursor gauge directly from a
// registry's current count, correcting for any opened/closed drift.
func (r *Registry) SetCursorsOpen(n int) {
	r.cursorsOpen.Set(float64(n))
}

// ObserveOp records one operation's latency and, if errKind is non-empty, a
// classified error count.
func (r *Registry) ObserveOp(op, backend string, seconds float64, errKind string) {
	r.opDuration.WithLabelValues(op, backend).Observe(seconds)
	if errKind != "" {
		r.opErrors.WithLabelValues(op, errKind).Inc()
	}
}

// Handler returns the HTTP handler serving this Registry's metrics in
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

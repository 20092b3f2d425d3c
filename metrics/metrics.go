// Package metrics provides Prometheus metrics export for the sync core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports sync, queue and cache metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Sync metrics
	syncPasses   *prometheus.CounterVec
	syncReplayed *prometheus.CounterVec
	queueDepth   prometheus.Gauge

	// Retry metrics
	retryAttempts prometheus.Counter

	// Cache metrics
	cacheRequests *prometheus.CounterVec

	// Store metrics
	storeFallbackScans prometheus.Counter
}

// NewExporter creates a new metrics exporter backed by its own registry.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{registry: registry}

	e.syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Completed drain passes by result",
		},
		[]string{"result"},
	)
	e.syncReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "sync",
			Name:      "replayed_total",
			Help:      "Replayed pending requests by outcome",
		},
		[]string{"outcome"},
	)
	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Pending requests currently queued",
		},
	)
	e.retryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "sync",
			Name:      "retry_attempts_total",
			Help:      "Individual network attempts made during replay",
		},
	)
	e.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "netcache",
			Name:      "requests_total",
			Help:      "Intercepted GET requests by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
	e.storeFallbackScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "store",
			Name:      "fallback_scans_total",
			Help:      "Index lookups degraded to full scans",
		},
	)

	registry.MustRegister(
		e.syncPasses,
		e.syncReplayed,
		e.queueDepth,
		e.retryAttempts,
		e.cacheRequests,
		e.storeFallbackScans,
	)

	return e
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) ObserveSyncPass(result string) {
	e.syncPasses.WithLabelValues(result).Inc()
}

func (e *Exporter) ObserveReplay(outcome string) {
	e.syncReplayed.WithLabelValues(outcome).Inc()
}

func (e *Exporter) SetQueueDepth(depth int) {
	e.queueDepth.Set(float64(depth))
}

func (e *Exporter) ObserveRetryAttempts(attempts int) {
	e.retryAttempts.Add(float64(attempts))
}

func (e *Exporter) ObserveCacheRequest(strategy, outcome string) {
	e.cacheRequests.WithLabelValues(strategy, outcome).Inc()
}

func (e *Exporter) ObserveFallbackScan() {
	e.storeFallbackScans.Inc()
}

// Package metrics exposes Prometheus collectors for the board pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "familyboard"

// Manager owns a registry and the collectors registered on it. It
// satisfies cache.Observer.
type Manager struct {
	registry *prometheus.Registry

	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	loaderFailures  *prometheus.CounterVec
	recordsDropped  *prometheus.CounterVec
	overflowEvents  prometheus.Counter
	boardBuilds     prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	lastRefreshUnix prometheus.Gauge
}

// NewManager creates a Manager with its own registry so tests can build
// as many as they like.
func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		registry: reg,
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Range cache lookups served from a fresh entry.",
		}, []string{"source"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Range cache lookups that invoked the loader.",
		}, []string{"source"}),
		loaderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "loader_failures_total",
			Help: "Loader calls that returned an error.",
		}, []string{"source"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "normalize", Name: "dropped_total",
			Help: "Provider records dropped for lacking a usable start.",
		}, []string{"source"}),
		overflowEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "layout", Name: "overflow_events_total",
			Help: "Timed events folded into overflow markers.",
		}),
		boardBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "board", Name: "builds_total",
			Help: "Boards assembled.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		lastRefreshUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "board", Name: "last_refresh_unix",
			Help: "Unix time of the last scheduled refresh.",
		}),
	}

	reg.MustRegister(
		m.cacheHits, m.cacheMisses, m.loaderFailures, m.recordsDropped,
		m.overflowEvents, m.boardBuilds, m.httpRequests, m.httpLatency, m.lastRefreshUnix,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) CacheHit(sourceID string)     { m.cacheHits.WithLabelValues(sourceID).Inc() }
func (m *Manager) CacheMiss(sourceID string)    { m.cacheMisses.WithLabelValues(sourceID).Inc() }
func (m *Manager) LoaderFailed(sourceID string) { m.loaderFailures.WithLabelValues(sourceID).Inc() }

func (m *Manager) RecordsDropped(sourceID string, n int) {
	m.recordsDropped.WithLabelValues(sourceID).Add(float64(n))
}

// BoardBuilt records one assembled board and its hidden timed events.
func (m *Manager) BoardBuilt(overflowed int) {
	m.boardBuilds.Inc()
	if overflowed > 0 {
		m.overflowEvents.Add(float64(overflowed))
	}
}

// Refreshed records the time of a scheduled refresh.
func (m *Manager) Refreshed(at time.Time) {
	m.lastRefreshUnix.Set(float64(at.Unix()))
}

// ObserveHTTP records one request.
func (m *Manager) ObserveHTTP(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

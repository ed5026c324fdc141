package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the scoring engine.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	incidents       *prometheus.CounterVec
	unmatched       prometheus.Counter
	bonusEvents     *prometheus.CounterVec
	runFailures     *prometheus.CounterVec
	projection      prometheus.Histogram

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conduct_cache_hits_total",
		Help: "Projection cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conduct_cache_misses_total",
		Help: "Projection cache misses",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conduct_cache_hit_ratio",
		Help: "Ratio of projection cache hits to lookups",
	})

	incidents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conduct_incidents_registered_total",
		Help: "Incident deltas registered, by measure category",
	}, []string{"category"})

	unmatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conduct_unmatched_measures_total",
		Help: "Measure descriptions that matched no category",
	})

	bonusEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conduct_bonus_events_total",
		Help: "Bonus ledger events written, by event type",
	}, []string{"type"})

	runFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conduct_bonus_run_failures_total",
		Help: "Per-student failures during batch runs",
	}, []string{"job"})

	projection := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conduct_projection_duration_seconds",
		Help:    "Time spent replaying a student's ledger",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheHitRatio,
		incidents, unmatched, bonusEvents, runFailures, projection, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
		incidents:       incidents,
		unmatched:       unmatched,
		bonusEvents:     bonusEvents,
		runFailures:     runFailures,
		projection:      projection,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a projection cache lookup and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// IncIncident counts a registered incident delta.
func (m *MetricsService) IncIncident(category string) {
	if m == nil {
		return
	}
	m.incidents.WithLabelValues(category).Inc()
}

// IncUnmatchedMeasure counts a description no category recognised.
func (m *MetricsService) IncUnmatchedMeasure() {
	if m == nil {
		return
	}
	m.unmatched.Inc()
}

// IncBonusEvent counts a bonus event written to the ledger.
func (m *MetricsService) IncBonusEvent(eventType string) {
	if m == nil {
		return
	}
	m.bonusEvents.WithLabelValues(eventType).Inc()
}

// IncRunFailure counts a student skipped by a batch job because of an error.
func (m *MetricsService) IncRunFailure(job string) {
	if m == nil {
		return
	}
	m.runFailures.WithLabelValues(job).Inc()
}

// ObserveProjection records how long a replay took.
func (m *MetricsService) ObserveProjection(duration time.Duration) {
	if m == nil {
		return
	}
	m.projection.Observe(duration.Seconds())
}

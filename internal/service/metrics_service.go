package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache, settlement and analysis activity.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	settlementsGenerated *prometheus.CounterVec
	settlementItems      prometheus.Counter
	analysisOutcomes     *prometheus.CounterVec
	analysisRetries      prometheus.Counter
	enqueueFailures      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	settlementsGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_generated_total",
		Help: "Settlements written by generate and regenerate runs",
	}, []string{"mode"})

	settlementItems := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_total",
		Help: "Settlement line items written",
	})

	analysisOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_outcomes_total",
		Help: "Video analysis runs by outcome",
	}, []string{"outcome"})

	analysisRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_rate_limit_retries_total",
		Help: "Retries caused by rate limiting of the analysis service",
	})

	enqueueFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_enqueue_failures_total",
		Help: "Background jobs that could not be enqueued",
	}, []string{"queue"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		settlementsGenerated, settlementItems, analysisOutcomes, analysisRetries, enqueueFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,

		settlementsGenerated: settlementsGenerated,
		settlementItems:      settlementItems,
		analysisOutcomes:     analysisOutcomes,
		analysisRetries:      analysisRetries,
		enqueueFailures:      enqueueFailures,
	}
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordSettlements counts settlements and items written by a generation run.
func (m *MetricsService) RecordSettlements(mode string, settlements, items int) {
	if m == nil {
		return
	}
	m.settlementsGenerated.WithLabelValues(mode).Add(float64(settlements))
	m.settlementItems.Add(float64(items))
}

// RecordAnalysisOutcome counts a finished analysis run.
func (m *MetricsService) RecordAnalysisOutcome(outcome string) {
	if m == nil {
		return
	}
	m.analysisOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAnalysisRetry counts one rate-limit retry.
func (m *MetricsService) RecordAnalysisRetry() {
	if m == nil {
		return
	}
	m.analysisRetries.Inc()
}

// RecordEnqueueFailure counts a job that could not be queued.
func (m *MetricsService) RecordEnqueueFailure(queue string) {
	if m == nil {
		return
	}
	m.enqueueFailures.WithLabelValues(queue).Inc()
}

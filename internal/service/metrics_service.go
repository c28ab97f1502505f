package service

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-insight/internal/models"
)

// Query outcome labels.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
	outcomeTooLarge = "too_large"
	outcomeError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots.
type MetricsService struct {
	registry       *prometheus.Registry
	handler        http.Handler
	queryDuration  *prometheus.HistogramVec
	queryTotal     *prometheus.CounterVec
	queryRows      prometheus.Histogram
	datasets       *prometheus.GaugeVec
	datasetRows    *prometheus.GaugeVec
	scheduleRuns   prometheus.Counter
	sectionsPlaced *prometheus.CounterVec
	cacheLatency   prometheus.Observer
	cacheWrite     prometheus.Observer
	cacheHitRatio  prometheus.Gauge
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter

	queryCount         uint64
	queryFailureCount  uint64
	queryDurationTotal uint64
	scheduleRunCount   uint64
	scheduledCount     uint64
	unscheduledCount   uint64
	cacheHitCount      uint64
	cacheMissCount     uint64
}

// NewMetricsService registers engine collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_query_duration_seconds",
		Help:    "Duration of query validation and execution in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	queryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_queries_total",
		Help: "Total number of queries by dataset kind and outcome",
	}, []string{"kind", "outcome"})

	queryRows := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_query_result_rows",
		Help:    "Number of rows returned by successful queries",
		Buckets: []float64{0, 1, 10, 100, 500, 1000, 2500, 5000},
	})

	datasets := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_datasets",
		Help: "Number of registered datasets by kind",
	}, []string{"kind"})

	datasetRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_dataset_rows",
		Help: "Total rows held in registered datasets by kind",
	}, []string{"kind"})

	scheduleRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_schedule_runs_total",
		Help: "Total scheduler invocations",
	})

	sectionsPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_schedule_sections_total",
		Help: "Sections processed by the scheduler by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "insight_cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(queryDuration, queryTotal, queryRows, datasets, datasetRows, scheduleRuns, sectionsPlaced,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		queryDuration:  queryDuration,
		queryTotal:     queryTotal,
		queryRows:      queryRows,
		datasets:       datasets,
		datasetRows:    datasetRows,
		scheduleRuns:   scheduleRuns,
		sectionsPlaced: sectionsPlaced,
		cacheLatency:   cacheLatency,
		cacheWrite:     cacheWrite,
		cacheHitRatio:  cacheHitRatio,
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
	}
}

// Handler exposes the Prometheus exposition handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveQuery records one query evaluation.
func (m *MetricsService) ObserveQuery(kind models.DatasetKind, outcome string, rows int, duration time.Duration) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	m.queryDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.queryTotal.WithLabelValues(label, outcome).Inc()
	atomic.AddUint64(&m.queryCount, 1)
	atomic.AddUint64(&m.queryDurationTotal, uint64(duration.Nanoseconds()))
	if outcome == outcomeOK {
		m.queryRows.Observe(float64(rows))
	} else {
		atomic.AddUint64(&m.queryFailureCount, 1)
	}
}

// SetDatasets publishes the registry contents as gauges.
func (m *MetricsService) SetDatasets(summaries []models.DatasetSummary) {
	if m == nil {
		return
	}
	counts := map[models.DatasetKind]int{models.DatasetKindCourses: 0, models.DatasetKindRooms: 0}
	rows := map[models.DatasetKind]int{models.DatasetKindCourses: 0, models.DatasetKindRooms: 0}
	for _, s := range summaries {
		counts[s.Kind]++
		rows[s.Kind] += s.NumRows
	}
	for kind, n := range counts {
		m.datasets.WithLabelValues(string(kind)).Set(float64(n))
		m.datasetRows.WithLabelValues(string(kind)).Set(float64(rows[kind]))
	}
}

// ObserveSchedule records one scheduler run.
func (m *MetricsService) ObserveSchedule(scheduled, unscheduled int) {
	if m == nil {
		return
	}
	m.scheduleRuns.Inc()
	m.sectionsPlaced.WithLabelValues("scheduled").Add(float64(scheduled))
	m.sectionsPlaced.WithLabelValues("unscheduled").Add(float64(unscheduled))
	atomic.AddUint64(&m.scheduleRunCount, 1)
	atomic.AddUint64(&m.scheduledCount, uint64(scheduled))
	atomic.AddUint64(&m.unscheduledCount, uint64(unscheduled))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() models.EngineMetrics {
	if m == nil {
		return models.EngineMetrics{}
	}
	queries := atomic.LoadUint64(&m.queryCount)
	queryDuration := atomic.LoadUint64(&m.queryDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgQueryMs float64
	if queries > 0 {
		avgQueryMs = float64(queryDuration) / float64(queries) / float64(time.Millisecond)
	}

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	return models.EngineMetrics{
		QueriesTotal:           queries,
		QueryFailures:          atomic.LoadUint64(&m.queryFailureCount),
		AverageQueryDurationMs: avgQueryMs,
		ScheduleRuns:           atomic.LoadUint64(&m.scheduleRunCount),
		SectionsScheduled:      atomic.LoadUint64(&m.scheduledCount),
		SectionsUnscheduled:    atomic.LoadUint64(&m.unscheduledCount),
		CacheHitRatio:          cacheRatio,
		CacheHits:              hits,
		CacheMisses:            misses,
		Goroutines:             runtime.NumGoroutine(),
		GeneratedAt:            time.Now().UTC(),
	}
}

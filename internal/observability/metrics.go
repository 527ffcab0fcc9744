// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cache metrics
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheErrors        *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	HotCacheEntries    prometheus.Gauge
	CoalescedRequests  prometheus.Counter

	// Source metrics
	SourceFetchLatency *prometheus.HistogramVec
	SourceFetchErrors  *prometheus.CounterVec
	StaleResults       prometheus.Counter

	// Engine metrics
	EngineRebuilds       prometheus.Counter
	EngineComputeLatency prometheus.Histogram
	DroppedEvents        prometheus.Counter
	Markers              prometheus.Gauge
	ExitingMarkers       prometheus.Gauge
	SnapshotsPublished   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Job metrics
	JobRuns *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFetch prometheus.Gauge
	LastPublished       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "econ_clock"
	}

	return &Metrics{
		// Cache metrics
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses by tier",
		}, []string{"tier"}),
		CacheErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache tier errors by tier and operation",
		}, []string{"tier", "operation"}),
		CacheInvalidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of cache invalidations by reason",
		}, []string{"reason"}),
		HotCacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hot_entries",
			Help:      "Current number of entries in the hot tier",
		}),
		CoalescedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "coalesced_requests_total",
			Help:      "Total number of requests served by a shared in-flight fetch",
		}),

		// Source metrics
		SourceFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_latency_seconds",
			Help:      "Authoritative source fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_errors_total",
			Help:      "Total number of authoritative source fetch errors",
		}, []string{"source"}),
		StaleResults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "stale_results_total",
			Help:      "Total number of superseded fetch results discarded",
		}),

		// Engine metrics
		EngineRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rebuilds_total",
			Help:      "Total number of bucket set rebuilds",
		}),
		EngineComputeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "compute_latency_seconds",
			Help:      "Marker computation latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		DroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped for unresolvable time",
		}),
		Markers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "markers",
			Help:      "Current number of active markers",
		}),
		ExitingMarkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exiting_markers",
			Help:      "Current number of markers in their exit grace period",
		}),
		SnapshotsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "snapshots_published_total",
			Help:      "Total number of render snapshots published",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Job metrics
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of maintenance job runs by status",
		}, []string{"job", "status"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last successful source fetch",
		}),
		LastPublished: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_published_timestamp",
			Help:      "Unix timestamp of last published snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCacheHit increments the hit counter of a tier.
func RecordCacheHit(tier string) {
	DefaultMetrics.CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss increments the miss counter of a tier.
func RecordCacheMiss(tier string) {
	DefaultMetrics.CacheMisses.WithLabelValues(tier).Inc()
}

// RecordCacheError records a failed tier read or write.
func RecordCacheError(tier, operation string) {
	DefaultMetrics.CacheErrors.WithLabelValues(tier, operation).Inc()
}

// RecordInvalidation records a cache invalidation.
func RecordInvalidation(reason string, entries int) {
	DefaultMetrics.CacheInvalidations.WithLabelValues(reason).Add(float64(entries))
}

// UpdateHotEntries sets the hot tier size gauge.
func UpdateHotEntries(n int) {
	DefaultMetrics.HotCacheEntries.Set(float64(n))
}

// RecordCoalesced increments the coalesced request counter.
func RecordCoalesced() {
	DefaultMetrics.CoalescedRequests.Inc()
}

// RecordSourceFetch records an authoritative source fetch.
func RecordSourceFetch(source string, seconds float64, err error) {
	DefaultMetrics.SourceFetchLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		DefaultMetrics.SourceFetchErrors.WithLabelValues(source).Inc()
		return
	}
	DefaultMetrics.LastSuccessfulFetch.SetToCurrentTime()
}

// RecordStaleResult increments the discarded stale result counter.
func RecordStaleResult() {
	DefaultMetrics.StaleResults.Inc()
}

// RecordCompute records one engine pass.
func RecordCompute(seconds float64, rebuilt bool, dropped, markers int) {
	DefaultMetrics.EngineComputeLatency.Observe(seconds)
	if rebuilt {
		DefaultMetrics.EngineRebuilds.Inc()
	}
	DefaultMetrics.DroppedEvents.Add(float64(dropped))
	DefaultMetrics.Markers.Set(float64(markers))
}

// RecordPublish records a published snapshot.
func RecordPublish(exiting int) {
	DefaultMetrics.SnapshotsPublished.Inc()
	DefaultMetrics.ExitingMarkers.Set(float64(exiting))
	DefaultMetrics.LastPublished.SetToCurrentTime()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordJobRun records a scheduler job run.
func RecordJobRun(job string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.JobRuns.WithLabelValues(job, status).Inc()
}

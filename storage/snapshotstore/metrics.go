package snapshotstore

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds Prometheus metrics for snapshot storage, labelled
// with the bucket so multiple instances stay distinguishable.
type storeMetrics struct {
	ops        *prometheus.CounterVec   // by operation: put, get, list, delete
	opLatency  *prometheus.HistogramVec // by operation
	errors     *prometheus.CounterVec   // by operation
	apiRequest *prometheus.CounterVec   // by action: get, list, delete

	snapshotsStored prometheus.Counter
	rowsBuffered    prometheus.Counter
	scansEvicted    prometheus.Counter

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// newStoreMetrics creates and registers snapshot store metrics with the registry.
func newStoreMetrics(registry *metric.MetricsRegistry, bucket string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	constLabels := prometheus.Labels{"bucket": bucket}

	m := &storeMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "operations_total",
			Help:        "Bucket operations by type",
			ConstLabels: constLabels,
		}, []string{"operation"}),

		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "operation_duration_seconds",
			Help:        "Bucket operation duration in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"operation"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "operation_errors_total",
			Help:        "Bucket operation errors by type",
			ConstLabels: constLabels,
		}, []string{"operation"}),

		apiRequest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "api_requests_total",
			Help:        "Snapshot API requests by action",
			ConstLabels: constLabels,
		}, []string{"action"}),

		snapshotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "snapshots_stored_total",
			Help:        "Completed scan snapshots persisted",
			ConstLabels: constLabels,
		}),

		rowsBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "rows_buffered_total",
			Help:        "Classified rows accumulated into pending snapshots",
			ConstLabels: constLabels,
		}),

		scansEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "scans_evicted_total",
			Help:        "Stale scan accumulations dropped without a completion marker",
			ConstLabels: constLabels,
		}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "cache_hits_total",
			Help:        "Snapshot reads served from the cache",
			ConstLabels: constLabels,
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "snapshotstore",
			Name:        "cache_misses_total",
			Help:        "Snapshot reads that went to the bucket",
			ConstLabels: constLabels,
		}),
	}

	prefix := "snapshotstore_" + bucket

	if err := registry.RegisterCounterVec(prefix, "ops", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(prefix, "op_latency", m.opLatency); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(prefix, "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(prefix, "api_requests", m.apiRequest); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "snapshots_stored", m.snapshotsStored); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "rows_buffered", m.rowsBuffered); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "scans_evicted", m.scansEvicted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "cache_hits", m.cacheHits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "cache_misses", m.cacheMisses); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) recordOp(operation string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(operation).Inc()
}

func (m *storeMetrics) recordLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *storeMetrics) recordError(operation string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation).Inc()
}

func (m *storeMetrics) recordAPIRequest(action string) {
	if m == nil {
		return
	}
	m.apiRequest.WithLabelValues(action).Inc()
}

func (m *storeMetrics) recordSnapshot() {
	if m == nil {
		return
	}
	m.snapshotsStored.Inc()
}

func (m *storeMetrics) recordRow() {
	if m == nil {
		return
	}
	m.rowsBuffered.Inc()
}

func (m *storeMetrics) recordEviction() {
	if m == nil {
		return
	}
	m.scansEvicted.Inc()
}

func (m *storeMetrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *storeMetrics) recordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

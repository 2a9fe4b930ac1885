package bulkload

import (
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// loadMetrics holds Prometheus metrics for the bulk-load output.
type loadMetrics struct {
	docsLoaded  prometheus.Counter
	docsFailed  prometheus.Counter
	docsDropped prometheus.Counter
	errors      *prometheus.CounterVec // by error_type
}

// newLoadMetrics creates and registers bulk-load metrics with the registry.
func newLoadMetrics(registry *metric.MetricsRegistry) (*loadMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &loadMetrics{
		docsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "bulkload",
			Name:      "docs_loaded_total",
			Help:      "Documents flushed into the inventory index",
		}),
		docsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "bulkload",
			Name:      "docs_failed_total",
			Help:      "Documents rejected by the bulk indexer",
		}),
		docsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "bulkload",
			Name:      "docs_dropped_total",
			Help:      "Invalid rows dropped before loading",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "bulkload",
			Name:      "errors_total",
			Help:      "Bulk-load errors",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterCounter("bulkload", "docs_loaded", m.docsLoaded); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("bulkload", "docs_failed", m.docsFailed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("bulkload", "docs_dropped", m.docsDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("bulkload", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *loadMetrics) recordLoad(stats escluster.BulkStats) {
	if m == nil {
		return
	}
	m.docsLoaded.Add(float64(stats.Flushed))
	m.docsFailed.Add(float64(stats.Failed))
}

func (m *loadMetrics) recordDrop() {
	if m == nil {
		return
	}
	m.docsDropped.Inc()
}

func (m *loadMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

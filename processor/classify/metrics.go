package classify

import (
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// classifyMetrics holds Prometheus metrics for the classify processor.
type classifyMetrics struct {
	rowsClassified *prometheus.CounterVec // by decomposition scheme
	errors         *prometheus.CounterVec // by error_type

	classifyDuration prometheus.Histogram
}

// newClassifyMetrics creates and registers classify metrics with the registry.
func newClassifyMetrics(registry *metric.MetricsRegistry) (*classifyMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &classifyMetrics{
		rowsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "classify",
			Name:      "rows_classified_total",
			Help:      "Rows classified, partitioned by decomposition scheme",
		}, []string{"scheme"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "classify",
			Name:      "errors_total",
			Help:      "Classification pipeline errors",
		}, []string{"error_type"}), // error_type: parse, type, validation, marshal, publish

		classifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "esdic",
			Subsystem: "classify",
			Name:      "classify_duration_seconds",
			Help:      "Per-row decomposition duration in seconds",
			Buckets:   []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01},
		}),
	}

	if err := registry.RegisterCounterVec("classify", "rows_classified", m.rowsClassified); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("classify", "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("classify", "classify_duration", m.classifyDuration); err != nil {
		return nil, err
	}

	return m, nil
}

// recordClassification records one successful row classification.
func (m *classifyMetrics) recordClassification(scheme string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rowsClassified.WithLabelValues(scheme).Inc()
	m.classifyDuration.Observe(duration.Seconds())
}

// recordError records one pipeline error.
func (m *classifyMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

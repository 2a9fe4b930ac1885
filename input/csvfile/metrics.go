package csvfile

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// csvfileMetrics holds Prometheus metrics for the CSV replay input.
type csvfileMetrics struct {
	rowsPublished prometheus.Counter
	rowsSkipped   *prometheus.CounterVec // by reason: malformed, invalid
	errors        *prometheus.CounterVec // by error_type
}

// newCSVFileMetrics creates and registers replay metrics with the registry.
func newCSVFileMetrics(registry *metric.MetricsRegistry) (*csvfileMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &csvfileMetrics{
		rowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvfile",
			Name:      "rows_published_total",
			Help:      "Inventory rows replayed from the export",
		}),
		rowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvfile",
			Name:      "rows_skipped_total",
			Help:      "Export rows skipped, partitioned by reason",
		}, []string{"reason"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvfile",
			Name:      "errors_total",
			Help:      "Replay errors",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterCounter("csvfile", "rows_published", m.rowsPublished); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("csvfile", "rows_skipped", m.rowsSkipped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("csvfile", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *csvfileMetrics) recordRow() {
	if m == nil {
		return
	}
	m.rowsPublished.Inc()
}

func (m *csvfileMetrics) recordSkip(reason string) {
	if m == nil {
		return
	}
	m.rowsSkipped.WithLabelValues(reason).Inc()
}

func (m *csvfileMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

package csvreport

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// reportMetrics holds Prometheus metrics for the CSV report output.
type reportMetrics struct {
	rowsWritten prometheus.Counter
	rotations   prometheus.Counter
	errors      *prometheus.CounterVec // by error_type
}

// newReportMetrics creates and registers report metrics with the registry.
func newReportMetrics(registry *metric.MetricsRegistry) (*reportMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &reportMetrics{
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvreport",
			Name:      "rows_written_total",
			Help:      "Report records written",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvreport",
			Name:      "rotations_total",
			Help:      "Report file rotations",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "csvreport",
			Name:      "errors_total",
			Help:      "Report writer errors",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterCounter("csvreport", "rows_written", m.rowsWritten); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("csvreport", "rotations", m.rotations); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("csvreport", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *reportMetrics) recordRows(n int) {
	if m == nil {
		return
	}
	m.rowsWritten.Add(float64(n))
}

func (m *reportMetrics) recordRotation() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

func (m *reportMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

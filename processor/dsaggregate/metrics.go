package dsaggregate

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// aggregateMetrics holds Prometheus metrics for the aggregation processor.
type aggregateMetrics struct {
	rowsAccumulated   prometheus.Counter
	aggregatesEmitted prometheus.Counter
	scansEvicted      prometheus.Counter
	errors            *prometheus.CounterVec // by error_type
}

// newAggregateMetrics creates and registers aggregation metrics with the registry.
func newAggregateMetrics(registry *metric.MetricsRegistry) (*aggregateMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &aggregateMetrics{
		rowsAccumulated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "dsaggregate",
			Name:      "rows_accumulated_total",
			Help:      "Classified rows folded into scan accumulations",
		}),
		aggregatesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "dsaggregate",
			Name:      "aggregates_emitted_total",
			Help:      "Per-datastream aggregates published",
		}),
		scansEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "dsaggregate",
			Name:      "scans_evicted_total",
			Help:      "Scan accumulations dropped without a completion marker",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "dsaggregate",
			Name:      "errors_total",
			Help:      "Aggregation errors",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterCounter("dsaggregate", "rows_accumulated", m.rowsAccumulated); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("dsaggregate", "aggregates_emitted", m.aggregatesEmitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("dsaggregate", "scans_evicted", m.scansEvicted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("dsaggregate", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *aggregateMetrics) recordRow() {
	if m == nil {
		return
	}
	m.rowsAccumulated.Inc()
}

func (m *aggregateMetrics) recordAggregate() {
	if m == nil {
		return
	}
	m.aggregatesEmitted.Inc()
}

func (m *aggregateMetrics) recordEviction() {
	if m == nil {
		return
	}
	m.scansEvicted.Inc()
}

func (m *aggregateMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

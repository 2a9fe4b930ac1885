package clusterscan

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// scanMetrics holds Prometheus metrics for the cluster scanner.
type scanMetrics struct {
	scansStarted   prometheus.Counter
	scansCompleted prometheus.Counter
	indicesSeen    prometheus.Gauge // index count of the most recent scan
	rowsPublished  prometheus.Counter
	errors         *prometheus.CounterVec // by error_type
}

// newScanMetrics creates and registers scanner metrics with the registry.
func newScanMetrics(registry *metric.MetricsRegistry) (*scanMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &scanMetrics{
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "clusterscan",
			Name:      "scans_started_total",
			Help:      "Scan passes started",
		}),
		scansCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "clusterscan",
			Name:      "scans_completed_total",
			Help:      "Scan passes that drained to completion",
		}),
		indicesSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "esdic",
			Subsystem: "clusterscan",
			Name:      "indices_seen",
			Help:      "Index count of the most recent scan",
		}),
		rowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "clusterscan",
			Name:      "rows_published_total",
			Help:      "Inventory rows published",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "clusterscan",
			Name:      "errors_total",
			Help:      "Scanner errors",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterCounter("clusterscan", "scans_started", m.scansStarted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("clusterscan", "scans_completed", m.scansCompleted); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("clusterscan", "indices_seen", m.indicesSeen); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("clusterscan", "rows_published", m.rowsPublished); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("clusterscan", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *scanMetrics) recordScanStart(indexCount int) {
	if m == nil {
		return
	}
	m.scansStarted.Inc()
	m.indicesSeen.Set(float64(indexCount))
}

func (m *scanMetrics) recordScanComplete() {
	if m == nil {
		return
	}
	m.scansCompleted.Inc()
}

func (m *scanMetrics) recordRow() {
	if m == nil {
		return
	}
	m.rowsPublished.Inc()
}

func (m *scanMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}

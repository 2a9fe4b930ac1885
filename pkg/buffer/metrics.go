package buffer

import (
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// ringMetrics exposes ring occupancy and load shedding through Prometheus.
type ringMetrics struct {
	appends prometheus.Counter
	drained prometheus.Counter
	shed    prometheus.Counter

	pending     prometheus.Gauge
	utilization prometheus.Gauge
}

func newRingMetrics(registry *metric.MetricsRegistry, component string) (*ringMetrics, error) {
	labels := prometheus.Labels{"component": component}
	m := &ringMetrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "buffer",
			Name:        "rows_appended_total",
			ConstLabels: labels,
			Help:        "Rows appended to the pending-row ring",
		}),
		drained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "buffer",
			Name:        "rows_drained_total",
			ConstLabels: labels,
			Help:        "Rows handed to a flush via Drain",
		}),
		shed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "esdic",
			Subsystem:   "buffer",
			Name:        "rows_shed_total",
			ConstLabels: labels,
			Help:        "Rows shed by the overflow policy",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "esdic",
			Subsystem:   "buffer",
			Name:        "pending_rows",
			ConstLabels: labels,
			Help:        "Rows currently awaiting a flush",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "esdic",
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Ring occupancy as a fraction of capacity (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(component, "buffer_rows_appended", m.appends); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "buffer_rows_drained", m.drained); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "buffer_rows_shed", m.shed); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_pending_rows", m.pending); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) recordAppend(size, capacity int) {
	m.appends.Inc()
	m.pending.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *ringMetrics) recordDrain(count int) {
	m.drained.Add(float64(count))
	m.pending.Set(0)
	m.utilization.Set(0)
}

func (m *ringMetrics) recordShed() {
	m.shed.Inc()
}

package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// MetricsRegistrar is what components receive through their dependencies:
// registration keyed by service and metric name, so two components cannot
// silently shadow each other's instruments.
type MetricsRegistrar interface {
	RegisterCounter(serviceName, metricName string, c prometheus.Counter) error
	RegisterCounterVec(serviceName, metricName string, cv *prometheus.CounterVec) error
	RegisterGauge(serviceName, metricName string, g prometheus.Gauge) error
	RegisterGaugeVec(serviceName, metricName string, gv *prometheus.GaugeVec) error
	RegisterHistogram(serviceName, metricName string, h prometheus.Histogram) error
	RegisterHistogramVec(serviceName, metricName string, hv *prometheus.HistogramVec) error
	Unregister(serviceName, metricName string) bool
}

// MetricsRegistry owns the process-wide Prometheus registry, the core
// pipeline metrics, and the per-component registrations layered on top.
type MetricsRegistry struct {
	Metrics *Metrics

	mu                 sync.RWMutex
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
}

// NewMetricsRegistry creates a registry preloaded with the core pipeline
// metrics and the Go runtime collectors.
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
		Metrics:            NewMetrics(),
	}
	registry.registerMetrics()
	registry.prometheusRegistry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry, which the
// metrics server hands to promhttp.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.prometheusRegistry }

// CoreMetrics returns the core pipeline metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics { return r.Metrics }

// registerCollector is the shared path behind the typed Register methods.
// A name collision inside the registry or a conflict inside Prometheus is
// Invalid (caller bug); any other Prometheus failure is Fatal.
func (r *MetricsRegistry) registerCollector(op, serviceName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceName + "." + metricName
	if _, dup := r.registeredMetrics[key]; dup {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for service %s", metricName, serviceName),
			"MetricsRegistry", op, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", op,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", op, "failed to register collector with prometheus")
	}
	r.registeredMetrics[key] = collector
	return nil
}

// The typed Register methods all funnel through registerCollector; the
// method name rides along for error context.

func (r *MetricsRegistry) RegisterCounter(service, name string, c prometheus.Counter) error {
	return r.registerCollector("RegisterCounter", service, name, c)
}

func (r *MetricsRegistry) RegisterGauge(service, name string, g prometheus.Gauge) error {
	return r.registerCollector("RegisterGauge", service, name, g)
}

func (r *MetricsRegistry) RegisterHistogram(service, name string, h prometheus.Histogram) error {
	return r.registerCollector("RegisterHistogram", service, name, h)
}

func (r *MetricsRegistry) RegisterCounterVec(service, name string, cv *prometheus.CounterVec) error {
	return r.registerCollector("RegisterCounterVec", service, name, cv)
}

func (r *MetricsRegistry) RegisterGaugeVec(service, name string, gv *prometheus.GaugeVec) error {
	return r.registerCollector("RegisterGaugeVec", service, name, gv)
}

func (r *MetricsRegistry) RegisterHistogramVec(service, name string, hv *prometheus.HistogramVec) error {
	return r.registerCollector("RegisterHistogramVec", service, name, hv)
}

// Unregister removes a metric, typically when a component is torn down at
// runtime so a later restart can register it fresh.
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceName + "." + metricName
	col, found := r.registeredMetrics[key]
	if !found || !r.prometheusRegistry.Unregister(col) {
		return false
	}
	delete(r.registeredMetrics, key)
	return true
}

func (r *MetricsRegistry) registerMetrics() {
	m := r.Metrics
	r.prometheusRegistry.MustRegister(
		m.ServiceStatus, m.HealthCheckStatus,
		m.MessagesReceived, m.MessagesProcessed, m.MessagesPublished,
		m.ProcessingDuration, m.ErrorsTotal,
		m.NATSConnected, m.NATSRTT, m.NATSReconnects, m.NATSCircuitBreaker,
	)
}

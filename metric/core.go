package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline-wide instruments every component shares:
// message flow, errors, health, and NATS connectivity. Component-specific
// metrics (scan progress, bulk batches) register separately through the
// registry.
type Metrics struct {
	ServiceStatus     *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec

	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSCircuitBreaker prometheus.Gauge
	NATSReconnects     prometheus.Counter
}

// NewMetrics builds the shared instruments under the esdic namespace.
func NewMetrics() *Metrics {
	const ns = "esdic"

	gaugeVec := func(sub, name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help,
		}, labels)
	}
	counterVec := func(sub, name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help,
		}, labels)
	}
	gauge := func(sub, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help,
		})
	}

	return &Metrics{
		ServiceStatus:     gaugeVec("service", "status", "Service state (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)", "service"),
		MessagesReceived:  counterVec("messages", "received_total", "Messages received from NATS", "service", "type"),
		MessagesProcessed: counterVec("messages", "processed_total", "Messages processed, by outcome", "service", "type", "status"),
		MessagesPublished: counterVec("messages", "published_total", "Messages published to NATS", "service", "subject"),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "processing", Name: "duration_seconds",
			Help:    "Per-message processing time",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "operation"}),
		ErrorsTotal:       counterVec("errors", "total", "Errors by service and kind", "service", "type"),
		HealthCheckStatus: gaugeVec("health", "status", "Health check result (0=unhealthy, 1=healthy)", "service"),
		NATSConnected:     gauge("nats", "connected", "NATS connection state (0=disconnected, 1=connected)"),
		NATSRTT:           gauge("nats", "rtt_milliseconds", "NATS round-trip time in milliseconds"),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "nats", Name: "reconnects_total",
			Help: "NATS reconnect count",
		}),
		NATSCircuitBreaker: gauge("nats", "circuit_breaker", "Publish circuit breaker state (0=closed, 1=open, 2=half-open)"),
	}
}

// boolGauge maps a boolean onto the 0/1 convention used by the gauges.
func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	c.HealthCheckStatus.WithLabelValues(service).Set(boolGauge(healthy))
}

func (c *Metrics) RecordMessageReceived(service, messageType string) {
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

func (c *Metrics) RecordMessageProcessed(service, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(service, messageType, status).Inc()
}

func (c *Metrics) RecordMessagePublished(service, subject string) {
	c.MessagesPublished.WithLabelValues(service, subject).Inc()
}

func (c *Metrics) RecordProcessingDuration(service, operation string, took time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(took.Seconds())
}

func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolGauge(connected))
}

func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

func (c *Metrics) RecordNATSReconnect() { c.NATSReconnects.Inc() }

func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

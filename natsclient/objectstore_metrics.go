package natsclient

import (
	"context"
	"sync"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
)

// objectStoreMetrics exposes the state of the snapshot buckets the client
// binds or creates. Only buckets touched through this client are tracked.
type objectStoreMetrics struct {
	bucketBytes *prometheus.GaugeVec // storage bytes per bucket
	errors      *prometheus.CounterVec
	reconnects  prometheus.Counter

	mu      sync.RWMutex
	buckets map[string]jetstream.ObjectStore
}

func newObjectStoreMetrics(registry *metric.MetricsRegistry) (*objectStoreMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &objectStoreMetrics{
		bucketBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "esdic",
			Subsystem: "nats",
			Name:      "object_store_bytes",
			Help:      "Storage bytes held by object store bucket",
		}, []string{"bucket"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "nats",
			Name:      "operation_errors_total",
			Help:      "Total NATS operation errors by operation",
		}, []string{"operation"}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "esdic",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total NATS reconnects observed by this client",
		}),

		buckets: make(map[string]jetstream.ObjectStore),
	}

	if err := registry.RegisterGaugeVec("nats", "object_store_bytes", m.bucketBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("nats", "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "reconnects", m.reconnects); err != nil {
		return nil, err
	}

	return m, nil
}

// trackBucket adds a bucket to the polling set.
func (m *objectStoreMetrics) trackBucket(name string, bucket jetstream.ObjectStore) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[name] = bucket
}

func (m *objectStoreMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *objectStoreMetrics) recordReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// updateStats refreshes the size gauge for every tracked bucket. A
// bucket whose status cannot be read keeps its last value.
func (m *objectStoreMetrics) updateStats(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.RLock()
	buckets := make(map[string]jetstream.ObjectStore, len(m.buckets))
	for k, v := range m.buckets {
		buckets[k] = v
	}
	m.mu.RUnlock()

	for name, bucket := range buckets {
		status, err := bucket.Status(ctx)
		if err != nil {
			m.errors.WithLabelValues("bucket_status").Inc()
			continue
		}
		m.bucketBytes.WithLabelValues(name).Set(float64(status.Size()))
	}
}

// startPoller refreshes bucket stats on the given interval until the
// returned cancel function is called.
func (m *objectStoreMetrics) startPoller(ctx context.Context, interval time.Duration) context.CancelFunc {
	if m == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.updateStats(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}

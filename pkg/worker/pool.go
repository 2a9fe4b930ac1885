package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Pool processes work items of type T on a fixed set of goroutines behind
// a bounded queue. Submit never blocks; a full queue is reported as
// ErrQueueFull so the caller can apply backpressure.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	queue   chan T
	metrics *Metrics
	wg      *sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	accepted  atomic.Int64
	completed atomic.Int64
	errored   atomic.Int64
	rejected  atomic.Int64

	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds the pool's Prometheus instruments.
type Metrics struct {
	depth    prometheus.Gauge
	fill     prometheus.Gauge
	accepted prometheus.Counter
	handled  prometheus.Counter
	errored  prometheus.Counter
	rejected prometheus.Counter
	latency  *prometheus.HistogramVec
}

// Option configures a Pool at construction.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry exports pool metrics under the given prefix, e.g.
// "clusterscan_stats" for the scan input's fetch pool.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) { p.metricsRegistry, p.metricsPrefix = registry, prefix }
}

// NewPool creates a pool. Zero or negative sizes fall back to 10 workers
// and a queue of 1000; a nil processor is a programming error and panics.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		queue:     make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metricsRegistry != nil && p.metricsPrefix != "" {
		p.initializeMetrics()
	}
	return p
}

func (p *Pool[T]) initializeMetrics() {
	const service = "worker_pool"
	prefix := p.metricsPrefix

	gauge := func(suffix, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: prefix + suffix, Help: help})
		p.metricsRegistry.RegisterGauge(service, prefix+suffix, g)
		return g
	}
	counter := func(suffix, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + suffix, Help: help})
		p.metricsRegistry.RegisterCounter(service, prefix+suffix, c)
		return c
	}

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_processing_duration_seconds",
		Help:    "Time spent on a single work item",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"status"})
	p.metricsRegistry.RegisterHistogramVec(service, prefix+"_processing_duration_seconds", latency)

	p.metrics = &Metrics{
		depth:    gauge("_queue_depth", "Work items waiting in the queue"),
		fill:     gauge("_utilization", "Queue fill ratio, 0 to 1"),
		accepted: counter("_submitted_total", "Work items accepted by Submit"),
		handled:  counter("_processed_total", "Work items handed to the processor"),
		errored:  counter("_failed_total", "Work items whose processor returned an error"),
		rejected: counter("_dropped_total", "Work items rejected on a full queue"),
		latency:  latency,
	}
}

// Submit enqueues a work item. A full queue returns ErrQueueFull rather
// than blocking; the scan input treats that as backpressure and slows its
// index listing.
func (p *Pool[T]) Submit(item T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}

	select {
	case p.queue <- item:
		p.accepted.Add(1)
		if p.metrics != nil {
			p.metrics.accepted.Inc()
			p.metrics.depth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.rejected.Add(1)
		if p.metrics != nil {
			p.metrics.rejected.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. The context bounds every job; cancelling it
// stops the workers even mid-queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.started = true

	p.wg = &sync.WaitGroup{}
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx)
	}
	return nil
}

// Stop closes the queue and waits up to timeout for in-flight work to
// drain. ErrStopTimeout means a job outlived the window.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if !p.started || p.stopped {
		return nil
	}
	close(p.queue)

	drained := make(chan struct{})
	go func() { p.wg.Wait(); close(drained) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-drained:
		p.stopped = true
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.accepted.Load(),
		Processed:  p.completed.Load(),
		Failed:     p.errored.Load(),
		Dropped:    p.rejected.Load(),
	}
}

// PoolStats is the JSON shape surfaced in component health details.
type PoolStats struct {
	Workers    int `json:"workers"`
	QueueSize  int `json:"queue_size"`
	QueueDepth int `json:"queue_depth"`

	Submitted int64 `json:"submitted"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.runJob(ctx, item)
		}
	}
}

// runJob executes one work item and records the outcome.
func (p *Pool[T]) runJob(ctx context.Context, item T) {
	start := time.Now()
	err := p.processor(ctx, item)

	p.completed.Add(1)
	if err != nil {
		p.errored.Add(1)
	}
	if p.metrics == nil {
		return
	}

	p.metrics.handled.Inc()
	status := "success"
	if err != nil {
		p.metrics.errored.Inc()
		status = "error"
	}
	p.metrics.latency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// metricsUpdater refreshes the depth and fill gauges once a second; Submit
// only updates depth on the enqueue path.
func (p *Pool[T]) metricsUpdater(ctx context.Context) {
	defer p.wg.Done()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			depth := float64(len(p.queue))
			p.metrics.depth.Set(depth)
			p.metrics.fill.Set(depth / float64(p.queueSize))
		}
	}
}

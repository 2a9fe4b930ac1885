// Package buffer provides a bounded ring buffer for pending report rows.
//
// Report sinks accumulate rows between flushes. When a flush target (the
// report file, the cluster) stalls, an unbounded slice grows without limit;
// the ring instead caps pending rows and sheds load according to a drop
// policy, counting every shed row so the loss is visible in metrics.
package buffer

import (
	"sync"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
)

// Policy selects which row is shed when the ring is full.
type Policy int

const (
	// DropOldest sheds the oldest pending row to admit the new one.
	// Reports prefer fresh rows: a stale inventory row is superseded by
	// the next scan anyway.
	DropOldest Policy = iota

	// DropNewest rejects the incoming row and keeps what is already
	// buffered.
	DropNewest
)

// String returns the policy name for logs.
func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	default:
		return "unknown"
	}
}

// Option configures a Ring.
type Option[T any] func(*ringConfig[T])

type ringConfig[T any] struct {
	policy  Policy
	onDrop  func(T)
	metrics *metric.MetricsRegistry
	name    string
}

// WithPolicy sets the shed policy. Default is DropOldest.
func WithPolicy[T any](p Policy) Option[T] {
	return func(c *ringConfig[T]) {
		c.policy = p
	}
}

// WithDropHandler registers a callback invoked (outside the ring lock) for
// every row shed by the policy.
func WithDropHandler[T any](fn func(T)) Option[T] {
	return func(c *ringConfig[T]) {
		c.onDrop = fn
	}
}

// WithMetrics exposes ring occupancy and shed counts as Prometheus metrics
// labelled with the owning component name. A nil registry disables export.
func WithMetrics[T any](registry *metric.MetricsRegistry, component string) Option[T] {
	return func(c *ringConfig[T]) {
		if registry != nil && component != "" {
			c.metrics = registry
			c.name = component
		}
	}
}

// Ring is a fixed-capacity FIFO of pending rows. All methods are safe for
// concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // next write slot
	tail  int // next read slot
	size  int

	policy  Policy
	onDrop  func(T)
	metrics *ringMetrics
}

// NewRing creates a ring holding at most capacity rows. Capacity below 1 is
// raised to 1. The error is non-nil only when metric registration fails.
func NewRing[T any](capacity int, opts ...Option[T]) (*Ring[T], error) {
	if capacity < 1 {
		capacity = 1
	}

	cfg := &ringConfig[T]{policy: DropOldest}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	var rm *ringMetrics
	if cfg.metrics != nil {
		var err error
		rm, err = newRingMetrics(cfg.metrics, cfg.name)
		if err != nil {
			return nil, err
		}
	}

	return &Ring[T]{
		items:   make([]T, capacity),
		policy:  cfg.policy,
		onDrop:  cfg.onDrop,
		metrics: rm,
	}, nil
}

// Append adds a row. It returns false when the policy shed a row to make
// room (DropOldest) or rejected the new one (DropNewest).
func (r *Ring[T]) Append(item T) bool {
	var dropped T
	var didDrop bool

	r.mu.Lock()
	if r.size == len(r.items) {
		didDrop = true
		switch r.policy {
		case DropNewest:
			dropped = item
			r.mu.Unlock()
			r.noteDrop(dropped)
			return false
		default: // DropOldest
			dropped = r.items[r.tail]
			r.tail = (r.tail + 1) % len(r.items)
			r.size--
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	size := r.size
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.recordAppend(size, len(r.items))
	}
	if didDrop {
		r.noteDrop(dropped)
	}
	return !didDrop
}

// Drain removes and returns every pending row in arrival order. It returns
// nil when the ring is empty.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	if r.size == 0 {
		r.mu.Unlock()
		return nil
	}

	out := make([]T, r.size)
	var zero T
	for i := range out {
		out[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
	}
	r.size = 0
	r.head = 0
	r.tail = 0
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.recordDrain(len(out))
	}
	return out
}

// Len returns the number of pending rows.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

func (r *Ring[T]) noteDrop(item T) {
	if r.metrics != nil {
		r.metrics.recordShed()
	}
	if r.onDrop != nil {
		r.onDrop(item)
	}
}

package worker

import "errors"

// Sentinel errors for pool lifecycle and submission. Callers branch on
// these with errors.Is, e.g. the scan input treats ErrQueueFull as
// backpressure and slows its index walk.
var (
	// ErrPoolNotStarted is returned by Submit before Start has run.
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolStopped is returned by Submit after Stop has run.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolAlreadyStarted is returned by a second Start.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrQueueFull is returned when the work queue is at capacity.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrNilProcessor is the panic value for a nil processor function.
	ErrNilProcessor = errors.New("processor function cannot be nil")

	// ErrStopTimeout is returned when workers do not drain in time.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)

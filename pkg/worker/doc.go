// Package worker provides a generic bounded worker pool. Its main consumer
// is the scan input, which fans per-index stats fetches out across a fixed
// number of goroutines so a 3000-index cluster is scanned concurrently
// without unbounded parallel requests.
//
// # Shape
//
// A Pool[T] owns a fixed set of workers reading from a bounded channel.
// Submit is non-blocking: when the queue is full it returns ErrQueueFull
// instead of waiting, and the caller decides what backpressure means (the
// scan input slows its index listing; a request path might shed load).
//
//	type statsFetch struct {
//	    Index   string
//	    Cluster string
//	}
//
//	pool := worker.NewPool[statsFetch](
//	    cfg.StatsConcurrency, 1000,
//	    func(ctx context.Context, f statsFetch) error {
//	        return scanner.fetchStats(ctx, f.Index)
//	    },
//	    worker.WithMetricsRegistry[statsFetch](registry, "clusterscan_stats"),
//	)
//
//	if err := pool.Start(ctx); err != nil { ... }
//	defer pool.Stop(10 * time.Second)
//
// # Lifecycle
//
// Start may be called once; Submit fails with ErrPoolNotStarted before it
// and ErrPoolStopped after Stop. Stop closes the queue, lets workers drain
// what is already queued, and gives up after the timeout with
// ErrStopTimeout. There is no per-item timeout; put one in the processor
// via the context if a single stats call can hang.
//
// Cancelling the Start context stops workers immediately, queued items
// included. Use Stop for a draining shutdown, the context for a hard one.
//
// # Observability
//
// Atomic counters are always on and surface through Stats(), which the
// scan input embeds in its health details. Prometheus metrics are opt-in
// via WithMetricsRegistry and add queue depth, utilization, and a
// per-status processing-duration histogram under the given prefix.
//
// # Errors
//
// Pool errors are plain sentinels, not classified errors: they signal
// caller bugs (ErrPoolNotStarted, ErrNilProcessor) or resource exhaustion
// (ErrQueueFull, ErrStopTimeout), never cluster conditions. Callers branch
// with errors.Is. Processor errors are counted as failures but otherwise
// passed through untouched.
//
// Worker count is fixed at construction. Scans are steady-state work with
// a known concurrency budget, so there is no dynamic scaling.
package worker

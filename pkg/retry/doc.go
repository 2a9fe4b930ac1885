// Package retry provides exponential backoff for transient failures in
// cluster scans, bulk loads and NATS publishes.
//
// Do runs a function until it succeeds, the attempts run out, or the
// context is cancelled; DoWithResult does the same for functions that
// return a value. DefaultConfig (3 attempts, 100ms-5s) fits per-index
// stats fetches and bulk request retries; Quick (10 attempts, 50ms-1s)
// fits component startup where dependencies usually come up within a
// second.
//
//	stats, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (escluster.IndexStats, error) {
//	    return cluster.IndexStats(ctx, indexName)
//	})
//
// Errors wrapped with NonRetryable fail immediately instead of burning
// the remaining attempts, for failures retrying cannot fix such as a
// missing index or a mapping conflict.
//
// The package is deliberately small: no breaker, no metrics, no error
// classification beyond the NonRetryable marker. Jitter uses a shared
// guarded random source, so everything here is safe for concurrent use.
package retry

package cache

import (
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
)

// Option configures a cache at construction time.
type Option[V any] func(*cacheOptions[V])

// cacheOptions is the resolved construction config. Statistics are always
// collected; Prometheus export is opt-in through WithMetrics.
type cacheOptions[V any] struct {
	statsInterval time.Duration // aggregate refresh cadence for TTL caches
	evictCallback EvictCallback[V]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string // component label on the exported metrics
}

// WithMetrics exports the cache statistics as Prometheus metrics under
// the given component prefix. A nil registry or empty prefix disables it.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry == nil || prefix == "" {
			return
		}
		opts.metricsReg, opts.metricsPrefix = registry, prefix
	}
}

// WithEvictionCallback observes entries as they are evicted or expired.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) { opts.evictCallback = callback }
}

// WithStatsInterval sets how often TTL caches refresh their aggregate
// statistics. Non-positive intervals keep the 30s default.
func WithStatsInterval[V any](interval time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if interval <= 0 {
			return
		}
		opts.statsInterval = interval
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{statsInterval: 30 * time.Second}
	for _, apply := range options {
		if apply != nil {
			apply(opts)
		}
	}
	return opts
}

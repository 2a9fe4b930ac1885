// Package cache provides generic, thread-safe in-memory caches used to keep
// repeated cluster lookups off the wire during a scan.
//
// # Overview
//
// Three eviction strategies are available:
//   - Simple: no eviction, entries live until deleted
//   - LRU: bounded size, least recently used entries evicted first
//   - TTL: entries expire after a time-to-live
//
// All implementations satisfy the Cache[V] interface, track statistics, and
// can export Prometheus metrics through the WithMetrics option.
//
// # Usage in the pipeline
//
// The cluster client caches per-index stats so a re-scan within the TTL does
// not hammer the stats API:
//
//	statsCache, err := cache.NewTTL[escluster.IndexStats](ctx, 5*time.Minute, time.Minute,
//		cache.WithMetrics[escluster.IndexStats](registry, "escluster"),
//	)
//
// The schema tag resolver uses an LRU bound, since tag sets are small and
// access-driven:
//
//	tagCache, err := cache.NewLRU[[]string](1000)
//
// The snapshot store builds its cache from config, which picks the strategy
// at deploy time:
//
//	c, err := cache.NewFromConfig[*Snapshot](ctx, cfg.Cache)
//
// A disabled Config yields a noop cache that always misses, so callers never
// branch on whether caching is on.
//
// # Configuration
//
// Config is JSON-serializable and accepts duration fields as either Go
// duration strings ("5m") or integer nanoseconds:
//
//	{
//	  "enabled": true,
//	  "strategy": "lru",
//	  "max_size": 5000,
//	  "ttl": "10m",
//	  "cleanup_interval": "1m"
//	}
//
// # Observability
//
// Statistics are always on and cost one atomic increment per operation.
// They answer the practical question after a scan run: did the cache help?
//
//	hits := statsCache.Stats().Hits()
//	ratio := statsCache.Stats().HitRatio()
//
// Prometheus metrics are opt-in via WithMetrics and carry a component label,
// so the escluster and snapshotstore caches stay distinguishable on one
// dashboard.
//
// # Lifecycle
//
// TTL caches run a background cleanup goroutine tied to the
// context passed at construction; cancel it or call Close to stop the
// goroutine. Simple and LRU caches have no background work but Close is
// still safe to call, so components can close every cache uniformly during
// shutdown.
//
// # Thread safety
//
// All operations are safe for concurrent use. Reads take an RWMutex read
// lock, writes serialize, statistics use atomics, and eviction callbacks run
// outside the cache lock.
package cache

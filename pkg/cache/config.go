package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// Strategy selects the eviction policy.
type Strategy string

const (
	// StrategySimple grows without bound. Fine for small, fixed key sets
	// like ILM policy names.
	StrategySimple Strategy = "simple"

	// StrategyLRU evicts the least recently used entry once full. The
	// default for per-index lookups where the hot set is a fraction of
	// the cluster.
	StrategyLRU Strategy = "lru"

	// StrategyTTL expires entries after a fixed lifetime, so stale stats
	// age out between scans.
	StrategyTTL Strategy = "ttl"
)

// Config configures cache creation, typically embedded in a component's
// config section (see the snapshot store).
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool `json:"enabled" schema:"editable,type:bool,description:Enable caching"`

	// Strategy determines the eviction strategy.
	Strategy Strategy `json:"strategy" schema:"editable,type:enum,description:Cache eviction strategy,enum:simple|lru|ttl"`

	// MaxSize is the maximum number of entries (LRU).
	MaxSize int `json:"max_size" schema:"editable,type:int,description:Maximum number of cache entries (for LRU),min:1"`

	// TTL is the time-to-live for entries (TTL strategy).
	TTL time.Duration `json:"ttl" schema:"editable,type:string,description:Time-to-live for entries (for TTL)"`

	// CleanupInterval is how often expired entries are swept (TTL strategy).
	CleanupInterval time.Duration `json:"cleanup_interval" schema:"editable,type:string,description:How often to run background cleanup (for TTL)"`

	// StatsInterval is how often to update aggregate statistics.
	StatsInterval time.Duration `json:"stats_interval" schema:"editable,type:string,description:How often to update aggregate statistics"`
}

// DefaultConfig returns the defaults used when a component's cache section
// is omitted: LRU over 1000 entries, suitable for per-index lookups on a
// mid-sized cluster.
func DefaultConfig() Config {
	return Config{
		Enabled: true, Strategy: StrategyLRU, MaxSize: 1000,
		TTL: 5 * time.Minute, CleanupInterval: time.Minute, StatsInterval: 30 * time.Second,
	}
}

// Validate checks strategy-specific requirements. A disabled config is
// always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
			fmt.Sprintf(format, args...))
	}

	switch c.Strategy {
	case StrategySimple:
		// no knobs to check
	case StrategyLRU:
		if c.MaxSize <= 0 {
			return invalid("max_size must be positive for LRU cache, got %d", c.MaxSize)
		}
	case StrategyTTL:
		if c.TTL <= 0 {
			return invalid("ttl must be positive for TTL cache, got %v", c.TTL)
		}
		if c.CleanupInterval <= 0 {
			return invalid("cleanup_interval must be positive for TTL cache, got %v", c.CleanupInterval)
		}
	default:
		return invalid("unknown cache strategy: %s", c.Strategy)
	}

	if c.StatsInterval < 0 {
		return invalid("stats_interval must be positive when specified, got %v", c.StatsInterval)
	}

	return nil
}

// NewFromConfig creates a cache from a validated config. A disabled config
// yields a no-op cache so callers never branch on Enabled themselves.
func NewFromConfig[V any](ctx context.Context, cfg Config, options ...Option[V]) (Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation failed")
	}
	if !cfg.Enabled {
		return NewNoop[V](), nil
	}
	if cfg.StatsInterval > 0 {
		options = append(options, WithStatsInterval[V](cfg.StatsInterval))
	}

	switch cfg.Strategy {
	case StrategySimple:
		return NewSimple[V](options...)
	case StrategyLRU:
		return NewLRU[V](cfg.MaxSize, options...)
	case StrategyTTL:
		return NewTTL[V](ctx, cfg.TTL, cfg.CleanupInterval, options...)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "cache", "NewFromConfig",
			fmt.Sprintf("unsupported cache strategy: %s", cfg.Strategy))
	}
}

// NewLRU creates a new LRU cache with the specified maximum size.
// Stats are always recorded. Use WithMetrics() to also export them as
// Prometheus metrics.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	return newLRUCache[V](maxSize, applyOptions(options...))
}

// NewTTL creates a new TTL cache with the specified TTL and cleanup interval.
// Stats are always recorded. Use WithMetrics() to also export them as
// Prometheus metrics.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	return newTTLCache[V](ctx, ttl, cleanupInterval, applyOptions(options...))
}

// NewSimple creates an unbounded cache with no eviction policy.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newSimpleCache[V](applyOptions(options...))
}

// NewNoop creates a cache that misses on every Get, used when caching is
// disabled via configuration.
func NewNoop[V any]() Cache[V] { return &noopCache[V]{} }

type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool)          { var zero V; return zero, false }
func (c *noopCache[V]) Set(_ string, _ V) (bool, error) { return false, nil }
func (c *noopCache[V]) Delete(_ string) (bool, error)   { return false, nil }
func (c *noopCache[V]) Clear() error                    { return nil }
func (c *noopCache[V]) Size() int                       { return 0 }
func (c *noopCache[V]) Keys() []string                  { return nil }
func (c *noopCache[V]) Stats() *Statistics              { return nil }
func (c *noopCache[V]) Close() error                    { return nil }

// UnmarshalJSON accepts duration fields as strings ("1h", "5m") or as
// integer nanoseconds, so hand-written config files can use the readable
// form.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config

	aux := &struct {
		TTL             json.RawMessage `json:"ttl,omitempty"`
		CleanupInterval json.RawMessage `json:"cleanup_interval,omitempty"`
		StatsInterval   json.RawMessage `json:"stats_interval,omitempty"`
		*alias
	}{
		alias: (*alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	durations := []struct {
		raw  json.RawMessage
		name string
		dst  *time.Duration
	}{
		{aux.TTL, "ttl", &c.TTL},
		{aux.CleanupInterval, "cleanup_interval", &c.CleanupInterval},
		{aux.StatsInterval, "stats_interval", &c.StatsInterval},
	}

	for _, d := range durations {
		if len(d.raw) == 0 {
			continue
		}
		parsed, err := parseDurationField(d.raw, d.name)
		if err != nil {
			return err
		}
		*d.dst = parsed
	}

	return nil
}

func parseDurationField(raw json.RawMessage, field string) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", field, err)
		}
		return d, nil
	}

	var nsec int64
	if err := json.Unmarshal(raw, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", field)
	}
	return time.Duration(nsec), nil
}

package cache

import (
	"sync"
	"sync/atomic"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// Statistics tracks hit/miss behavior so a long scan can tell whether its
// schema-tag and index-stats caches are actually earning their memory.
type Statistics struct {
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64

	mu          sync.RWMutex
	currentSize int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics { return &Statistics{} }

// The recorders are atomic; only the size gauge needs the mutex because
// it is set, not incremented.

func (s *Statistics) Hit()      { atomic.AddInt64(&s.hits, 1) }
func (s *Statistics) Miss()     { atomic.AddInt64(&s.misses, 1) }
func (s *Statistics) Set()      { atomic.AddInt64(&s.sets, 1) }
func (s *Statistics) Delete()   { atomic.AddInt64(&s.deletes, 1) }
func (s *Statistics) Eviction() { atomic.AddInt64(&s.evictions, 1) }

// UpdateSize records the current entry count.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	s.mu.Unlock()
}

func (s *Statistics) Hits() int64      { return atomic.LoadInt64(&s.hits) }
func (s *Statistics) Misses() int64    { return atomic.LoadInt64(&s.misses) }
func (s *Statistics) Sets() int64      { return atomic.LoadInt64(&s.sets) }
func (s *Statistics) Deletes() int64   { return atomic.LoadInt64(&s.deletes) }
func (s *Statistics) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// CurrentSize returns the current number of entries.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// HitRatio returns hits / (hits + misses), or 0 before any lookups.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// tally fans each Statistics update out to the optional Prometheus
// metrics, so a strategy records both with one call. The metrics side is
// nil unless WithMetrics was given.
type tally struct {
	stats   *Statistics
	metrics *cacheMetrics
}

func newTally[V any](caller string, opts *cacheOptions[V]) (tally, error) {
	t := tally{stats: NewStatistics()}
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		metrics, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return t, errors.WrapTransient(err, "cache", caller, "metrics registration")
		}
		t.metrics = metrics
	}
	return t, nil
}

func (t tally) hit() {
	t.stats.Hit()
	if t.metrics != nil {
		t.metrics.recordHit()
	}
}

func (t tally) miss() {
	t.stats.Miss()
	if t.metrics != nil {
		t.metrics.recordMiss()
	}
}

func (t tally) set() {
	t.stats.Set()
	if t.metrics != nil {
		t.metrics.recordSet()
	}
}

func (t tally) deleted() {
	t.stats.Delete()
	if t.metrics != nil {
		t.metrics.recordDelete()
	}
}

func (t tally) evicted() {
	t.stats.Eviction()
	if t.metrics != nil {
		t.metrics.recordEviction()
	}
}

func (t tally) size(n int) {
	t.stats.UpdateSize(int64(n))
	if t.metrics != nil {
		t.metrics.updateSize(n)
	}
}

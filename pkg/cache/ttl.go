package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	key      string
	value    V
	deadline time.Time
}

func (e *ttlEntry[V]) expired(now time.Time) bool { return now.After(e.deadline) }

// ttlCache expires entries after a fixed lifetime. The escluster client
// uses it for per-index stats so a re-scan inside the TTL window reuses
// the last fetch.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*ttlEntry[V]

	ttl             time.Duration
	cleanupInterval time.Duration
	statsInterval   time.Duration

	tally
	evictFn EvictCallback[V]

	shutdown chan struct{}
	done     chan struct{}
}

func newTTLCache[V any](
	ctx context.Context, ttl, cleanupInterval time.Duration, opts *cacheOptions[V],
) (*ttlCache[V], error) {
	tally, err := newTally("newTTLCache", opts)
	if err != nil {
		return nil, err
	}

	c := &ttlCache[V]{
		cleanupInterval: cleanupInterval,
		ttl:             ttl,
		statsInterval:   opts.statsInterval,
		evictFn:         opts.evictCallback,
		entries:         make(map[string]*ttlEntry[V]),
		tally:           tally,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	// Cleanup stops when the caller's context ends or Close is called.
	go c.cleanup(ctx)

	return c, nil
}

// Get returns the cached value unless the entry has expired. An expired
// entry is removed on the spot rather than waiting for the sweep, so a
// caller never sees stale stats.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V

	if !exists {
		c.miss()
		return zero, false
	}

	if entry.expired(time.Now()) {
		c.dropExpired(key)
		c.miss()
		return zero, false
	}

	c.hit()
	return entry.value, true
}

// dropExpired removes one expired entry ahead of the sweep.
func (c *ttlCache[V]) dropExpired(key string) {
	c.mu.Lock()
	// Re-check under the write lock; the sweep may have raced us.
	entry, exists := c.entries[key]
	if !exists || !entry.expired(time.Now()) {
		c.mu.Unlock()
		return
	}
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	c.evicted()
	c.size(size)

	// The callback runs outside the lock; it may call back into the cache.
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
}

// Set stores a value and restarts its lifetime. Returns true when the key
// was not already present.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	deadline := time.Now().Add(c.ttl)

	c.mu.Lock()
	_, exists := c.entries[key]
	c.entries[key] = &ttlEntry[V]{key: key, value: value, deadline: deadline}
	size := len(c.entries)
	c.mu.Unlock()

	c.set()
	c.size(size)

	return !exists, nil
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	c.deleted()
	c.size(size)

	// Like dropExpired, the callback stays outside the lock.
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
	return true, nil
}

// Clear removes all entries, firing the eviction callback for each.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	if c.evictFn != nil {
		for _, entry := range c.entries {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.entries = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	c.size(0)
	return nil
}

// Size counts stored entries, expired-but-unswept ones included.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the keys of all unexpired entries.
func (c *ttlCache[V]) Keys() []string {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if !entry.expired(now) {
			out = append(out, key)
		}
	}
	return out
}

// Stats returns the cache's statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background sweep. Safe to call more than once.
func (c *ttlCache[V]) Close() error {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("ttl cache sweep did not stop within 5s")
	}
}

func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	sweep := time.NewTicker(c.cleanupInterval)
	defer sweep.Stop()
	for {
		select {
		case <-sweep.C:
			c.removeExpired()
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := time.Now()
	var expired []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.expired(now) {
			expired = append(expired, entry)
			delete(c.entries, key)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	// Callbacks run outside the lock; they may call back into the cache.
	if c.evictFn != nil {
		for _, entry := range expired {
			c.evictFn(entry.key, entry.value)
		}
	}

	if len(expired) > 0 {
		for range expired {
			c.evicted()
		}
		c.size(size)
	}
}

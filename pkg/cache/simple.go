package cache

import "sync"

// simpleCache has no eviction policy. It suits small fixed key sets like
// ILM policy names, where the population is bounded by the cluster itself.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	tally
	evictFn EvictCallback[V]
}

func newSimpleCache[V any](opts *cacheOptions[V]) (*simpleCache[V], error) {
	tally, err := newTally("newSimpleCache", opts)
	if err != nil {
		return nil, err
	}
	return &simpleCache[V]{entries: make(map[string]V), tally: tally, evictFn: opts.evictCallback}, nil
}

// Get retrieves a value by key.
func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.entries[key]
	c.mu.RUnlock()

	if exists {
		c.hit()
	} else {
		c.miss()
	}
	return value, exists
}

// Set stores a value. Returns true when the key was not already present.
func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.entries[key]
	c.entries[key] = value
	count := len(c.entries)
	c.mu.Unlock()

	c.set()
	c.size(count)
	return !exists, nil
}

// Delete removes an entry by key, firing the eviction callback with the
// stored value.
func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	value, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	delete(c.entries, key)
	count := len(c.entries)
	c.mu.Unlock()

	if c.evictFn != nil {
		c.evictFn(key, value)
	}
	c.deleted()
	c.size(count)
	return true, nil
}

// Clear removes all entries, firing the eviction callback for each.
func (c *simpleCache[V]) Clear() error {
	c.mu.Lock()
	evicted := c.entries
	c.entries = make(map[string]V)
	c.mu.Unlock()

	if c.evictFn != nil {
		for key, value := range evicted {
			c.evictFn(key, value)
		}
	}
	c.size(0)
	return nil
}

// Size returns the current number of entries.
func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all keys in map order.
func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns the cache's statistics.
func (c *simpleCache[V]) Stats() *Statistics { return c.stats }

// Close is a no-op; simple caches run no background goroutines.
func (c *simpleCache[V]) Close() error { return nil }

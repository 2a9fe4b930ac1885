package cache

import (
	"container/list"
	"sync"
)

type lruEntry[V any] struct {
	value V
	key   string
}

// lruCache bounds memory by evicting the least recently used entry. The
// hot set during a scan is the indices that are still active, so this is
// the default strategy for per-index lookups.
type lruCache[V any] struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	tally
	evictFn EvictCallback[V]
}

func newLRUCache[V any](maxSize int, opts *cacheOptions[V]) (*lruCache[V], error) {
	tally, err := newTally("newLRUCache", opts)
	if err != nil {
		return nil, err
	}

	return &lruCache[V]{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		evictFn: opts.evictCallback,
		tally:   tally,
	}, nil
}

// Get retrieves a value and marks the key most recently used. Takes the
// write lock because the recency list moves on every hit.
func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.miss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hit()
	return el.Value.(*lruEntry[V]).value, true
}

// Set stores a value, evicting the coldest entry if the cache is full.
// Returns true when the key was not already present.
func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, found := c.items[key]; found {
		el.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(el)
		c.set()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	if len(c.items) > c.maxSize {
		c.evictLRU()
	}

	c.set()
	c.size(len(c.items))

	return true, nil
}

// Delete removes an entry by key.
func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	el, found := c.items[key]
	if !found {
		c.mu.Unlock()
		return false, nil
	}
	entry := el.Value.(*lruEntry[V])
	c.removeElementUnsafe(el)
	c.deleted()
	c.size(len(c.items))
	c.mu.Unlock()

	// Callback runs outside the lock; it may call back into the cache.
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}

	return true, nil
}

// Clear removes all entries, firing the eviction callback for each.
func (c *lruCache[V]) Clear() error {
	var evictItems []lruEntry[V]

	c.mu.Lock()
	if c.evictFn != nil {
		evictItems = make([]lruEntry[V], 0, len(c.items))
		for el := c.order.Back(); el != nil; el = el.Prev() {
			evictItems = append(evictItems, *el.Value.(*lruEntry[V]))
		}
	}
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.size(0)
	c.mu.Unlock()

	for _, entry := range evictItems {
		c.evictFn(entry.key, entry.value)
	}

	return nil
}

// Size returns the current number of entries.
func (c *lruCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all keys, most recently used first.
func (c *lruCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*lruEntry[V]).key)
	}
	return out
}

// Stats returns the cache's statistics.
func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close is a no-op; LRU caches run no background goroutines.
func (c *lruCache[V]) Close() error {
	return nil
}

// evictLRU drops the entry at the back of the recency list. Must be
// called with the mutex held.
func (c *lruCache[V]) evictLRU() {
	el := c.order.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*lruEntry[V])
	c.removeElementUnsafe(el)
	c.evicted()

	// The lock is dropped around the callback so it can touch the cache.
	if c.evictFn != nil {
		c.mu.Unlock()
		c.evictFn(entry.key, entry.value)
		c.mu.Lock()
	}
}

// removeElementUnsafe unlinks an element from the list and map. Must be
// called with the mutex held; the caller owns any eviction callback.
func (c *lruCache[V]) removeElementUnsafe(el *list.Element) {
	delete(c.items, el.Value.(*lruEntry[V]).key)
	c.order.Remove(el)
}

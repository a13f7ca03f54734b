package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a thread-safe TTL cache with a bounded number of entries.
// Expiry is lazy: a stale entry is dropped when it is read. When the cache is
// full, the entry inserted longest ago is evicted, regardless of how often it was read.
type Cache[V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
}

type cacheEntry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Option customizes a Cache
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache holding at most maxEntries values for ttl each
func New[V any](ttl time.Duration, maxEntries int, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxEntries < 1 {
		maxEntries = 1
	}

	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        o.now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key if present and not stale
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, exists := c.entries[key]
	if !exists {
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[V])
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeElement(elem)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key. Re-setting a key counts as a fresh insertion.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.removeElement(elem)
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	entry := &cacheEntry[V]{key: key, value: value, storedAt: c.now()}
	c.entries[key] = c.order.PushBack(entry)
}

// Delete removes key if present
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.removeElement(elem)
	}
}

// Len returns the number of resident entries, stale ones included
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
}

func (c *Cache[V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry[V]).key)
}

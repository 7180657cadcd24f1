// Package cache provides a small thread-safe TTL cache. The auth
// propagator uses it to cache resolved tokens so hot routes do not hammer
// the token source.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry holds a cached value with its expiry
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired() bool {
	return time.Now().After(e.expiresAt)
}

// TTL is a thread-safe cache whose entries expire after a fixed duration.
// Expired entries are dropped lazily on Get and swept by a background
// cleaner started by New.
type TTL[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*entry[V]

	hits   atomic.Int64
	misses atomic.Int64

	shutdown chan struct{}
	once     sync.Once
}

// New creates a TTL cache and starts its background sweeper. Close releases
// the sweeper goroutine.
func New[V any](ttl, cleanupInterval time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]*entry[V]),
		shutdown: make(chan struct{}),
	}
	go c.sweep(cleanupInterval)
	return c
}

// Get retrieves a live value by key
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || e.expired() {
		if ok {
			c.mu.Lock()
			delete(c.items, key)
			c.mu.Unlock()
		}
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set stores a value under key with the cache's TTL
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// SetWithTTL stores a value with an entry-specific TTL, used when the token
// source reports its own expiry.
func (c *TTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes a key
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns hit and miss counts
func (c *TTL[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the background sweeper. Safe to call more than once.
func (c *TTL[V]) Close() {
	c.once.Do(func() { close(c.shutdown) })
}

func (c *TTL[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Package cache provides a bounded, thread-safe cache with predicate-based
// staleness.
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StaleFunc reports whether a value should be dropped at time now.
type StaleFunc[V any] func(value V, now time.Time) bool

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock overrides the time source used by Prune.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.now = now
	}
}

// WithEvictHook registers fn to run when an entry is pushed out by the
// capacity bound. Prune and Remove do not trigger it.
func WithEvictHook[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// Cache holds at most capacity entries, evicting the least recently used
// when full. Staleness is never enforced by a background sweep; callers
// run Prune at points of their choosing.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[K, V]
	stale   StaleFunc[V]
	now     func() time.Time
	onEvict func(K, V)
	pruning bool
}

// New creates a Cache bounded by capacity. stale may be nil, in which case
// Prune never removes anything.
func New[K comparable, V any](capacity int, stale StaleFunc[V], opts ...Option[K, V]) (*Cache[K, V], error) {
	c := &Cache[K, V]{
		stale: stale,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := lru.NewWithEvict[K, V](capacity, func(key K, value V) {
		// Called with c.mu held by Add.
		if c.onEvict != nil && !c.pruning {
			c.onEvict(key, value)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// Get returns the value for key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

// Add stores value under key. It reports whether an older entry was
// evicted to make room.
func (c *Cache[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Add(key, value)
}

// Remove deletes key, reporting whether it was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruning = true
	defer func() { c.pruning = false }()
	return c.entries.Remove(key)
}

// Prune removes every stale entry and returns how many were removed.
func (c *Cache[K, V]) Prune() int {
	if c.stale == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruning = true
	defer func() { c.pruning = false }()

	now := c.now()
	removed := 0
	for _, key := range c.entries.Keys() {
		value, ok := c.entries.Peek(key)
		if ok && c.stale(value, now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, stale or not.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Package cache provides a bounded, TTL-evicting in-memory cache.
// It backs fallback paths that must keep working when the persistence
// boundary is slow or unreachable; size and lifetime are explicit so the
// fallback behaviour is testable in isolation.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	expires  time.Time
	lastUsed time.Time
}

// TTL is a size-limited map with per-entry expiry. When the cache is full,
// Set evicts the least recently used entry. Safe for concurrent use.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewTTL creates a cache holding at most maxSize entries, each valid for ttl.
// A maxSize below 1 defaults to 128; a non-positive ttl defaults to a minute.
func NewTTL[K comparable, V any](maxSize int, ttl time.Duration) *TTL[K, V] {
	if maxSize < 1 {
		maxSize = 128
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}

	e.lastUsed = c.now()
	c.entries[key] = e
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is at capacity.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry[V]{
		value:    value,
		expires:  now.Add(c.ttl),
		lastUsed: now,
	}
}

// Delete removes the entry for key, if any.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently held, including expired ones
// that have not been touched since expiry.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *TTL[K, V]) evictOldest() {
	var oldestKey K
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastUsed.Before(oldest) {
			oldestKey = k
			oldest = e.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

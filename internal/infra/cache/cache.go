// Package cache provides a small in-memory TTL cache.
// The agent uses it for the active-product catalog, which changes rarely
// but is read on every funnel turn. In production this could be backed
// by Redis.
package cache

import (
	"sync"
	"time"
)

type item[T any] struct {
	value    T
	deadline time.Time
}

// InMemory is a thread-safe in-memory cache with a fixed TTL per instance.
// Expired entries are dropped lazily on read and swept on writes past the
// sweep interval, so there is no background goroutine to manage.
type InMemory[T any] struct {
	mu        sync.RWMutex
	items     map[string]item[T]
	ttl       time.Duration
	nextSweep time.Time
}

// New creates an in-memory cache whose entries live for ttl.
func New[T any](ttl time.Duration) *InMemory[T] {
	return &InMemory[T]{
		items:     make(map[string]item[T]),
		ttl:       ttl,
		nextSweep: time.Now().Add(ttl),
	}
}

// Get returns the cached value for key, or false on miss or expiry.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().After(it.deadline) {
		c.Delete(key)
		var zero T
		return zero, false
	}
	return it.value, true
}

// Set stores value under key with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.After(c.nextSweep) {
		for k, it := range c.items {
			if now.After(it.deadline) {
				delete(c.items, k)
			}
		}
		c.nextSweep = now.Add(c.ttl)
	}

	c.items[key] = item[T]{value: value, deadline: now.Add(c.ttl)}
}

// Delete removes key from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Package cache provides a small in-process LRU cache with TTL support,
// used by the store facade to avoid re-reading hot records.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxItems        int
}

// Cache is an LRU cache with per-entry expiration.
type Cache[K comparable, V any] struct {
	cache    map[K]*entry[K, V]
	order    *list.List
	config   Config
	mu       sync.Mutex
	stopOnce sync.Once
	stop     chan struct{}
}

type entry[K comparable, V any] struct {
	expiresAt time.Time
	element   *list.Element
	key       K
	value     V
}

// New creates a new Cache and starts its cleanup goroutine.
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}

	c := &Cache[K, V]{
		cache:  make(map[K]*entry[K, V]),
		order:  list.New(),
		config: config,
		stop:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Get retrieves a value from the cache.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		var zero V
		return zero, false
	}

	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value using the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.config.DefaultTTL)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.cache) >= c.config.MaxItems {
		c.evictOldest()
	}

	e := &entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.config.DefaultTTL),
	}
	e.element = c.order.PushFront(e)
	c.cache[key] = e
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[key]; ok {
		c.removeEntry(e)
	}
}

// Clear drops every cached entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[K]*entry[K, V])
	c.order.Init()
}

// Size returns the number of live entries.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Close stops the cleanup goroutine.
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache[K, V]) removeEntry(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
}

func (c *Cache[K, V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(*entry[K, V]))
}

func (c *Cache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, e := range c.cache {
		if now.After(e.expiresAt) {
			c.removeEntry(e)
		}
	}
}

// Package memory provides an in-memory cache implementation.
// This is suitable for single-node deployments where Redis is not available.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/boxvault/internal/repository"
)

// Cache implements repository.Cache using in-memory storage.
// This is NOT suitable for distributed deployments.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]cacheItem
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// cacheItem represents a single cached item. A zero expiresAt never expires.
type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// NewCache creates a new in-memory cache that sweeps expired items every interval.
func NewCache(sweepInterval time.Duration) *Cache {
	c := &Cache{
		items:  make(map[string]cacheItem),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	if sweepInterval > 0 {
		go c.cleanupLoop(sweepInterval)
	}
	return c
}

// cleanupLoop periodically removes expired items.
func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Len returns the number of stored items, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || item.expired(c.now()) {
		return nil, repository.ErrCacheMiss
	}

	// Return a copy to prevent mutation.
	return append([]byte(nil), item.value...), nil
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Ensure Cache implements repository.Cache.
var _ repository.Cache = (*Cache)(nil)

// Package redis provides a Redis-backed cache shared by every server instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prn-tf/boxvault/internal/repository"
)

// Cache implements repository.Cache on a Redis client.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

// NewCache creates a cache whose keys are namespaced with prefix.
func NewCache(client goredis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
	}
	return val, nil
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
	}
	return nil
}

var _ repository.Cache = (*Cache)(nil)

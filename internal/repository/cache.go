package repository

import (
	"context"
	"time"
)

// =============================================================================
// Cache Interface
// =============================================================================

// Cache defines the interface for lookup caching.
// Implemented in memory for single-node deployments and on Redis otherwise.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKey generates cache keys for common scenarios.
type CacheKey struct{}

// Organization returns a cache key for organization lookups by name.
func (CacheKey) Organization(name string) string {
	return "cache:organization:" + name
}

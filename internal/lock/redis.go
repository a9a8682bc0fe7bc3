package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only when the key still carries our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and token-checked release,
// so one instance can never release a lock another instance acquired after
// ours expired.
type RedisLocker struct {
	client goredis.UniversalClient

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLocker creates a new RedisLocker on a Redis client.
func NewRedisLocker(client goredis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
		tokens: make(map[string]string),
	}
}

// Acquire attempts to acquire a lock.
// Returns true if the lock was acquired, false if it's held by another process.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, ok, err := l.AcquireOwned(ctx, key, ttl)
	if err != nil || !ok {
		return ok, err
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// AcquireOwned acquires key with a fresh token and returns it.
func (l *RedisLocker) AcquireOwned(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis lock acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (l *RedisLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return retry(ctx, maxRetries, retryDelay, func() (bool, error) {
		return l.Acquire(ctx, key, ttl)
	})
}

// Release releases a lock acquired by this locker through Acquire.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return false, nil
	}
	return l.ReleaseOwned(ctx, key, token)
}

// ReleaseOwned deletes key only while it carries token.
func (l *RedisLocker) ReleaseOwned(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("redis lock release %s: %w", key, err)
	}
	return n == 1, nil
}

// Extend extends the TTL of a lock acquired by this locker through Acquire.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	token, ok := l.tokens[key]
	l.mu.Unlock()

	if !ok {
		return false, nil
	}
	return l.ExtendOwned(ctx, key, token, ttl)
}

// ExtendOwned refreshes key only while it carries token.
func (l *RedisLocker) ExtendOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis lock extend %s: %w", key, err)
	}
	return n == 1, nil
}

// IsHeld checks if the lock is currently held.
func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Ensure RedisLocker implements Locker and OwnerLocker.
var (
	_ Locker      = (*RedisLocker)(nil)
	_ OwnerLocker = (*RedisLocker)(nil)
)

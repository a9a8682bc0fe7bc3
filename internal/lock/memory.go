package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker using in-memory locks.
// This is suitable for single-node deployments where distributed locking is not needed.
// The locks are NOT shared across process restarts or multiple instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	expiresAt time.Time
	token     string
}

// NewMemoryLocker creates a new in-memory locker.
// Expired entries are evicted lazily on access.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// liveLocked returns the live entry for key, evicting it when expired.
// The caller holds m.mu.
func (m *MemoryLocker) liveLocked(key string) (memoryEntry, bool) {
	entry, exists := m.locks[key]
	if !exists {
		return memoryEntry{}, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.locks, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_, ok, err := m.AcquireOwned(ctx, key, ttl)
	return ok, err
}

// AcquireOwned acquires key and returns the token of this acquisition.
func (m *MemoryLocker) AcquireOwned(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.liveLocked(key); live {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryEntry{expiresAt: m.now().Add(ttl), token: token}
	return token, true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return retry(ctx, maxRetries, retryDelay, func() (bool, error) {
		return m.Acquire(ctx, key, ttl)
	})
}

// Release releases a lock regardless of who acquired it.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, held := m.liveLocked(key)
	delete(m.locks, key)
	return held, nil
}

// ReleaseOwned releases key only while it carries token.
func (m *MemoryLocker) ReleaseOwned(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, live := m.liveLocked(key)
	if !live || entry.token != token {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Extend extends the TTL of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, live := m.liveLocked(key)
	if !live {
		return false, nil
	}
	entry.expiresAt = m.now().Add(ttl)
	m.locks[key] = entry
	return true, nil
}

// ExtendOwned extends key only while it carries token.
func (m *MemoryLocker) ExtendOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, live := m.liveLocked(key)
	if !live || entry.token != token {
		return false, nil
	}
	entry.expiresAt = m.now().Add(ttl)
	m.locks[key] = entry
	return true, nil
}

// IsHeld checks if a lock is currently held.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, live := m.liveLocked(key)
	return live, nil
}

// Ensure MemoryLocker implements Locker and OwnerLocker.
var (
	_ Locker      = (*MemoryLocker)(nil)
	_ OwnerLocker = (*MemoryLocker)(nil)
)

// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks are used.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prn-tf/boxvault/internal/domain"
)

// ErrNotAcquired indicates a lock is held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another process.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock held by this locker.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// OwnerLocker is implemented by lockers that tie release and extension to
// one acquisition. A holder whose TTL lapsed can then never free or refresh
// a lock someone else acquired on the same key afterwards.
type OwnerLocker interface {
	// AcquireOwned acquires key and returns the token identifying this acquisition.
	AcquireOwned(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseOwned releases key only while it still carries token.
	ReleaseOwned(ctx context.Context, key, token string) (bool, error)

	// ExtendOwned refreshes key only while it still carries token.
	ExtendOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// retry runs acquire until it succeeds, fails, or attempts run out.
func retry(ctx context.Context, maxRetries int, retryDelay time.Duration, acquire func() (bool, error)) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := acquire()
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		// Don't sleep on the last attempt.
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return false, nil
}

// =============================================================================
// Multi-key locking
// =============================================================================

// Options controls how AcquireAll waits for keys.
type Options struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions suits artifact mutations. The TTL is refreshed by the caller
// for long uploads. Lockers without OwnerLocker release by key alone, so a
// holder stalled past the TTL may free a lock a later request acquired.
var DefaultOptions = Options{
	TTL:        5 * time.Minute,
	MaxRetries: 10,
	RetryDelay: 200 * time.Millisecond,
}

// Held is a set of acquired keys released together.
type Held struct {
	locker Locker
	keys   []string

	// tokens parallels keys when locker is an OwnerLocker.
	tokens []string
}

// AcquireAll acquires every distinct key in sorted order so two callers
// locking overlapping sets cannot deadlock. On failure nothing stays held.
// A key held by someone else yields ErrNotAcquired; backend failures are
// returned wrapped.
func AcquireAll(ctx context.Context, locker Locker, opts Options, keys ...string) (*Held, error) {
	sorted := dedupeSorted(keys)
	held := &Held{locker: locker}
	owner, owned := locker.(OwnerLocker)

	for _, key := range sorted {
		var (
			token string
			ok    bool
			err   error
		)
		if owned {
			ok, err = retry(ctx, opts.MaxRetries, opts.RetryDelay, func() (acquired bool, err error) {
				token, acquired, err = owner.AcquireOwned(ctx, key, opts.TTL)
				return acquired, err
			})
		} else {
			ok, err = locker.AcquireWithRetry(ctx, key, opts.TTL, opts.MaxRetries, opts.RetryDelay)
		}
		if err == nil && !ok {
			err = ErrNotAcquired
		}
		if err != nil {
			held.Release(context.WithoutCancel(ctx))
			if errors.Is(err, ErrNotAcquired) {
				return nil, err
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		held.keys = append(held.keys, key)
		if owned {
			held.tokens = append(held.tokens, token)
		}
	}
	return held, nil
}

// Keys returns the held keys in acquisition order.
func (h *Held) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Extend refreshes the TTL of every held key. A key that is no longer ours
// yields an error wrapping ErrNotAcquired.
func (h *Held) Extend(ctx context.Context, ttl time.Duration) error {
	for i, key := range h.keys {
		var (
			ok  bool
			err error
		)
		if h.tokens != nil {
			ok, err = h.locker.(OwnerLocker).ExtendOwned(ctx, key, h.tokens[i], ttl)
		} else {
			ok, err = h.locker.Extend(ctx, key, ttl)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s was lost", ErrNotAcquired, key)
		}
	}
	return nil
}

// Release releases every held key in reverse order.
func (h *Held) Release(ctx context.Context) {
	for i := len(h.keys) - 1; i >= 0; i-- {
		if h.tokens != nil {
			_, _ = h.locker.(OwnerLocker).ReleaseOwned(ctx, h.keys[i], h.tokens[i])
			continue
		}
		_, _ = h.locker.Release(ctx, h.keys[i])
	}
	h.keys = nil
	h.tokens = nil
}

func dedupeSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i == 0 || k != out[n-1] {
			out[n] = k
			n++
		}
	}
	return out[:n]
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Artifact returns the lock key serializing mutations of one artifact slot.
func (lockKeys) Artifact(addr domain.Address) string {
	return "lock:artifact:" + addr.String()
}

// Sweeper returns the lock key for temp-upload cleanup.
func (lockKeys) Sweeper() string {
	return "lock:sweeper"
}

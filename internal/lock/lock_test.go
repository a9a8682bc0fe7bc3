package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/boxvault/internal/domain"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func lockers(t *testing.T) map[string]func() Locker {
	return map[string]func() Locker{
		"memory": func() Locker { return NewMemoryLocker() },
		"redis": func() Locker {
			l, _ := newRedisLocker(t)
			return l
		},
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, mk := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			l := mk()
			ctx := context.Background()

			ok, err := l.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = l.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			held, err := l.IsHeld(ctx, "k")
			require.NoError(t, err)
			assert.True(t, held)

			ok, err = l.Extend(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			released, err := l.Release(ctx, "k")
			require.NoError(t, err)
			assert.True(t, released)

			released, err = l.Release(ctx, "k")
			require.NoError(t, err)
			assert.False(t, released)

			ok, err = l.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLocker_RetryGivesUp(t *testing.T) {
	for name, mk := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			l := mk()
			ctx := context.Background()

			ok, err := l.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = l.AcquireWithRetry(ctx, "k", time.Minute, 2, time.Millisecond)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Acquire(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	held, _ := l.IsHeld(ctx, "k")
	assert.False(t, held)

	ok, _ = l.Acquire(ctx, "k", time.Second)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Our lock expires and another instance takes the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	released, err := l.Release(ctx, "k")
	require.NoError(t, err)
	assert.False(t, released)

	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestAcquireAll_SortedAndAllOrNothing(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	opts := Options{TTL: time.Minute, MaxRetries: 0, RetryDelay: time.Millisecond}

	held, err := AcquireAll(ctx, l, opts, "b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, held.Keys())
	held.Release(ctx)

	ok, _ := l.Acquire(ctx, "b", time.Minute)
	require.True(t, ok)

	_, err = AcquireAll(ctx, l, opts, "a", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	stillHeld, _ := l.IsHeld(ctx, "a")
	assert.False(t, stillHeld, "partially acquired keys must be released")
}

func TestHeld_StaleReleaseKeepsNewHolder(t *testing.T) {
	memory := NewMemoryLocker()
	now := time.Now()
	memory.now = func() time.Time { return now }
	redisLocker, mr := newRedisLocker(t)

	cases := map[string]struct {
		locker Locker
		lapse  func(d time.Duration)
	}{
		"memory": {memory, func(d time.Duration) { now = now.Add(d) }},
		"redis":  {redisLocker, mr.FastForward},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opts := Options{TTL: time.Second}

			first, err := AcquireAll(ctx, tc.locker, opts, "k")
			require.NoError(t, err)

			// The first holder stalls past its TTL and a second request takes the key.
			tc.lapse(2 * time.Second)
			second, err := AcquireAll(ctx, tc.locker, Options{TTL: time.Minute}, "k")
			require.NoError(t, err)

			assert.ErrorIs(t, first.Extend(ctx, time.Minute), ErrNotAcquired)
			assert.NoError(t, second.Extend(ctx, time.Minute))

			first.Release(ctx)
			held, err := tc.locker.IsHeld(ctx, "k")
			require.NoError(t, err)
			assert.True(t, held, "a stale holder must not free the new holder's lock")

			second.Release(ctx)
			held, err = tc.locker.IsHeld(ctx, "k")
			require.NoError(t, err)
			assert.False(t, held)
		})
	}
}

func TestHeld_ExtendReportsLostLock(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	held, err := AcquireAll(ctx, l, Options{TTL: time.Second}, "k")
	require.NoError(t, err)
	require.NoError(t, held.Extend(ctx, time.Second))

	now = now.Add(2 * time.Second)
	err = held.Extend(ctx, time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestAcquireAll_BackendErrorIsNotBusy(t *testing.T) {
	l, mr := newRedisLocker(t)
	mr.Close()

	_, err := AcquireAll(context.Background(), l, Options{TTL: time.Second}, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}

func TestKeys(t *testing.T) {
	addr := domain.Address{Organization: "acme", Box: "debian12", Version: "1.0", Provider: "libvirt", Architecture: "amd64"}
	assert.Equal(t, "lock:artifact:acme/debian12/1.0/libvirt/amd64", Keys.Artifact(addr))
}

func TestNoOpLocker(t *testing.T) {
	l := NewNoOpLocker()
	ok, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = l.Acquire(ctx, "k", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
}

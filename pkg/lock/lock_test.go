package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/restokit/pkg/lock"
)

func setupLocker(t *testing.T) (*lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewLocker(client, lock.WithPrefix("test:")), mr
}

func TestLocker_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("second holder is refused", func(t *testing.T) {
		t.Parallel()
		l, mr := setupLocker(t)
		ctx := context.Background()

		lease, err := l.Acquire(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.True(t, mr.Exists("test:job"))

		_, err = l.Acquire(ctx, "job", time.Minute)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)

		require.NoError(t, lease.Release(ctx))
		assert.False(t, mr.Exists("test:job"))

		_, err = l.Acquire(ctx, "job", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("expired lease cannot release new holder", func(t *testing.T) {
		t.Parallel()
		l, mr := setupLocker(t)
		ctx := context.Background()

		old, err := l.Acquire(ctx, "job", time.Second)
		require.NoError(t, err)
		mr.FastForward(2 * time.Second)

		_, err = l.Acquire(ctx, "job", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, old.Release(ctx), lock.ErrNotHeld)
		assert.True(t, mr.Exists("test:job"))
	})

	t.Run("invalid ttl", func(t *testing.T) {
		t.Parallel()
		l, _ := setupLocker(t)
		_, err := l.Acquire(context.Background(), "job", 0)
		assert.ErrorIs(t, err, lock.ErrInvalidTTL)
	})
}

func TestLocker_WithLock(t *testing.T) {
	t.Parallel()

	t.Run("runs fn and releases", func(t *testing.T) {
		t.Parallel()
		l, mr := setupLocker(t)

		ran := false
		acquired, err := l.WithLock(context.Background(), "job", time.Minute, func(ctx context.Context) error {
			ran = true
			assert.True(t, mr.Exists("test:job"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.True(t, ran)
		assert.False(t, mr.Exists("test:job"))
	})

	t.Run("skips fn when held elsewhere", func(t *testing.T) {
		t.Parallel()
		l, _ := setupLocker(t)
		ctx := context.Background()

		_, err := l.Acquire(ctx, "job", time.Minute)
		require.NoError(t, err)

		acquired, err := l.WithLock(ctx, "job", time.Minute, func(context.Context) error {
			t.Fatal("fn must not run")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("returns fn error and still releases", func(t *testing.T) {
		t.Parallel()
		l, mr := setupLocker(t)
		boom := errors.New("boom")

		acquired, err := l.WithLock(context.Background(), "job", time.Minute, func(context.Context) error {
			return boom
		})
		assert.True(t, acquired)
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("test:job"))
	})
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := lock.Healthcheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorIs(t, check(context.Background()), lock.ErrHealthcheckFailed)
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("bad url", func(t *testing.T) {
		t.Parallel()
		_, err := lock.Connect(context.Background(), lock.Config{ConnectionURL: "://", ConnectTimeout: time.Second})
		assert.ErrorIs(t, err, lock.ErrFailedToParseRedisConnString)
	})

	t.Run("connects", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		client, err := lock.Connect(context.Background(), lock.Config{
			ConnectionURL:  "redis://" + mr.Addr() + "/0",
			RetryAttempts:  1,
			RetryInterval:  time.Millisecond,
			ConnectTimeout: time.Second,
		})
		require.NoError(t, err)
		_ = client.Close()
	})
}

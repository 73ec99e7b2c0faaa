package cron_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/restokit/pkg/cron"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	if l.held[key] {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()
	return true, fn(ctx)
}

func newClock() *clock {
	return &clock{now: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)}
}

func TestScheduler_Add(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("b", cron.Every(time.Minute), noop))
	require.NoError(t, s.Add("a", cron.Every(time.Minute), noop))
	assert.ErrorIs(t, s.Add("a", cron.Every(time.Minute), noop), cron.ErrJobAlreadyRegistered)
	assert.ErrorIs(t, s.Add("", cron.Every(time.Minute), noop), cron.ErrInvalidJob)
	assert.ErrorIs(t, s.Add("c", nil, noop), cron.ErrInvalidJob)
	assert.ErrorIs(t, s.Add("c", cron.Every(time.Minute), nil), cron.ErrInvalidJob)

	assert.Equal(t, []string{"a", "b"}, s.Jobs())
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	c := newClock()
	s := cron.NewScheduler(cron.WithClock(c.Now))
	var runs atomic.Int32
	require.NoError(t, s.Add("daily", cron.DailyAt(2, 0), func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx := context.Background()
	s.Tick(ctx)
	s.Wait()
	assert.Equal(t, int32(0), runs.Load(), "not due yet")

	c.Advance(2 * time.Hour)
	s.Tick(ctx)
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())

	// Same slot is not run twice.
	s.Tick(ctx)
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())

	// Missed slots collapse into one run.
	c.Advance(72 * time.Hour)
	s.Tick(ctx)
	s.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_NoOverlap(t *testing.T) {
	t.Parallel()

	c := newClock()
	s := cron.NewScheduler(cron.WithClock(c.Now))
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Add("slow", cron.Every(time.Minute), func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	ctx := context.Background()
	c.Advance(time.Minute)
	s.Tick(ctx)
	c.Advance(time.Minute)
	s.Tick(ctx)
	close(release)
	s.Wait()

	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_Locker(t *testing.T) {
	t.Parallel()

	c := newClock()
	locker := &fakeLocker{held: map[string]bool{"cron:held": true}}
	s := cron.NewScheduler(cron.WithClock(c.Now), cron.WithLocker(locker, time.Minute))

	var free, held atomic.Int32
	require.NoError(t, s.Add("free", cron.Every(time.Minute), func(context.Context) error {
		free.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("held", cron.Every(time.Minute), func(context.Context) error {
		held.Add(1)
		return nil
	}))

	c.Advance(time.Minute)
	s.Tick(context.Background())
	s.Wait()

	assert.Equal(t, int32(1), free.Load())
	assert.Equal(t, int32(0), held.Load())
	assert.ElementsMatch(t, []string{"cron:free", "cron:held"}, locker.keys)
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := cron.NewScheduler()
	require.NoError(t, s.Add("fails", cron.Every(time.Hour), func(context.Context) error { return boom }))

	assert.ErrorIs(t, s.RunNow(context.Background(), "fails"), boom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), cron.ErrInvalidJob)
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	t.Run("no jobs", func(t *testing.T) {
		t.Parallel()
		err := cron.NewScheduler().Start(context.Background())
		assert.ErrorIs(t, err, cron.ErrSchedulerNotConfigured)
	})

	t.Run("runs until cancelled", func(t *testing.T) {
		t.Parallel()
		s := cron.NewScheduler(cron.WithCheckInterval(5 * time.Millisecond))
		ran := make(chan struct{}, 1)
		require.NoError(t, s.Add("tick", cron.Every(time.Millisecond), func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Start(ctx) }()

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

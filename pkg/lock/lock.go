package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/restokit/pkg/logger"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out single-holder leases on Redis keys.
type Locker struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Locker) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLocker creates a Locker on client.
func NewLocker(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lease is a held lock. Release it when done; an expired lease is released by Redis.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Key returns the full Redis key.
func (ls *Lease) Key() string { return ls.key }

// Acquire takes the lock for ttl. It returns ErrNotAcquired when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	lease := &Lease{
		locker: l,
		key:    l.prefix + key,
		token:  uuid.NewString(),
	}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", lease.key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lease, nil
}

// Release frees the lock if it is still ours. ErrNotHeld means it expired
// or was taken over before Release ran.
func (ls *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, ls.locker.client, []string{ls.key}, ls.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", ls.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// WithLock runs fn while holding key. When another holder has the key it
// returns acquired=false and does not run fn.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lease, err := l.Acquire(ctx, key, ttl)
	if errors.Is(err, ErrNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	runErr := fn(ctx)

	// Release even if ctx was cancelled by fn's caller.
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := lease.Release(relCtx); err != nil {
		l.logger.WarnContext(ctx, "lock release failed",
			slog.String("key", lease.key),
			logger.Error(err))
	}
	return true, runErr
}

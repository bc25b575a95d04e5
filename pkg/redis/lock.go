package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

const lockPrefix = "rls:lock:"

// Locker hands out short-lived exclusive locks keyed by name.
type Locker struct {
	locks  *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocker creates a Locker on top of c. Locks expire after ttl even if the
// holder dies without releasing them.
func NewLocker(c *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{
		locks:  redislock.New(c.rdb),
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-locker"),
	}
}

// WithLock runs fn while holding the lock for name. If another holder has
// it, fn is not run and an error wrapping apperrors.ErrLockHeld is returned.
func (l *Locker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := LockKey(name)
	lock, err := l.locks.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("lock held elsewhere", "key", key)
		return fmt.Errorf("%w: %s", apperrors.ErrLockHeld, name)
	}
	if err != nil {
		return fmt.Errorf("obtaining lock %s: %w", key, err)
	}
	defer func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}

// LockKey returns the Redis key used for name.
func LockKey(name string) string {
	return lockPrefix + name
}

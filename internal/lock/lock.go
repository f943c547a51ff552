// Package lock provides a best-effort cross-instance mutex. Database row locks
// stay authoritative; this only keeps competing instances from piling up on them.
package lock

import (
	"context"
	"errors"
	"time"

	"gstbooks/internal/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker acquires a named lock. Acquire never fails: when the lock cannot be
// taken the returned release func is a no-op and the caller proceeds.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func())
}

// NewRedisClient returns nil when addr is empty.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
		PoolSize: 20,
	})
}

// New returns a redis-backed locker, or a no-op locker when rdb is nil.
func New(rdb *redis.Client, ttl time.Duration) Locker {
	if rdb == nil {
		return Noop{}
	}
	return &redisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		log:    logger.WithComponent("lock"),
	}
}

type redisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func (l *redisLocker) Acquire(ctx context.Context, key string) func() {
	opts := &redislock.Options{RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50)}
	lk, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.log.Warn().Str("key", key).Msg("could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("error obtaining redis lock; proceeding without redis lock")
		return func() {}
	}

	return func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
		}
	}
}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context, string) func() { return func() {} }

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements appledger.Locker on top of redislock. Held locks
// expire after the TTL, and Acquire polls until the timeout elapses.
type RedisLocker struct {
	client  *redislock.Client
	closer  func() error
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
}

// NewRedisLocker creates a locker using an existing Redis client.
// The caller keeps ownership of the client.
func NewRedisLocker(client redis.Scripter, opts ...Option) *RedisLocker {
	o := newOptions(opts)
	return &RedisLocker{
		client:  redislock.New(client),
		closer:  func() error { return nil },
		ttl:     o.ttl,
		timeout: o.timeout,
		retry:   o.retryInterval,
	}
}

// Acquire obtains the lock for key, retrying until the timeout elapses
func (l *RedisLocker) Acquire(ctx context.Context, key string) (appledger.Lock, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if err != nil {
		return nil, obtainError(ctx, key, err)
	}
	return &redisLock{lock: lk}, nil
}

// obtainError maps a redislock failure to the ledger error contract
func obtainError(ctx context.Context, key string, err error) error {
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrLockTimeout
	}
	return fmt.Errorf("obtain lock %s: %w", key, err)
}

// Close closes the Redis client when the locker owns it
func (l *RedisLocker) Close() error {
	return l.closer()
}

type redisLock struct {
	lock *redislock.Lock
}

func (r *redisLock) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("release lock %s: %w", r.lock.Key(), err)
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)

package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis is a Locker shared by every server instance pointed at the same
// Redis. Locks expire after TTL so a crashed holder cannot wedge a key.
type Redis struct {
	client  *redislock.Client
	prefix  string
	ttl     time.Duration
	backoff time.Duration
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client:  redislock.New(rdb),
		prefix:  prefix,
		ttl:     ttl,
		backoff: 25 * time.Millisecond,
	}
}

// Obtain retries until the lock is free or the context (or, without a
// deadline, the TTL) runs out.
func (r *Redis) Obtain(ctx context.Context, key string) (Lock, error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return redisLock{l}, nil
}

type redisLock struct {
	*redislock.Lock
}

func (l redisLock) Release(ctx context.Context) error {
	err := l.Lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// expired under us; nothing left to release
		return nil
	}
	return err
}

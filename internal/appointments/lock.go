package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("booking lock already held")

// Locker serializes check-then-insert around one date. The unique
// (date,start) index remains the hard guarantee; the lock keeps competing
// requests from both paying the overlap query only for one to fail on it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const lockTTL = 5 * time.Second

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "lock:booking:"+key, token, lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		current, err := l.client.Get(ctx, "lock:booking:"+key).Result()
		if err == nil && current == token {
			_ = l.client.Del(ctx, "lock:booking:"+key).Err()
		}
	}
	return release, nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if it still holds the caller's token,
// so an expired holder can never release someone else's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const pollInterval = 10 * time.Millisecond

// Redis implements Locker with SET NX plus a TTL and a Lua-based
// conditional unlock.
type Redis struct {
	rdb      redis.UniversalClient
	unlockSc *redis.Script
}

// NewRedis creates a Redis-backed locker.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// TryAcquire makes a single attempt. It returns ErrLockHeld if someone
// else holds key.
func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := r.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Background context so unlock still runs after the caller's
			// context is cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// Acquire polls until key is free or ctx is done, with the same error
// contract as Local.Acquire.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		unlock, err := r.TryAcquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			if ctx.Err() != nil {
				return nil, waitErr(ctx)
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, waitErr(ctx)
		case <-ticker.C:
		}
	}
}

var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
	_ Locker = Noop{}
)

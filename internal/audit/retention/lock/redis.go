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

const redisKeyPrefix = "alumni:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lease lock: SET NX with a TTL so a crashed holder frees the
// lock after ttl. While held, the lease is renewed every ttl/3 so a run
// longer than ttl keeps it.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	renew  time.Duration
}

// RedisOption configures a Redis lock.
type RedisOption func(*Redis)

// WithRenewInterval overrides the renewal period. Non-positive values are ignored.
func WithRenewInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.renew = d
		}
	}
}

func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	r := &Redis{client: client, ttl: ttl, renew: ttl / 3}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	key := redisKeyPrefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.keepAlive(key, token, stop)
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
		err := releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis unlock: %w", err)
		}
		return nil
	}, true, nil
}

// keepAlive renews the lease until stop closes or the lease is no longer ours.
// A failed renewal is retried on the next tick; the lease expires on its own
// if Redis stays unreachable.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.renew)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.renew)
			n, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

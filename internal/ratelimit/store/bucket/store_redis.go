package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alumni/internal/ratelimit"
)

// RedisStore implements ratelimit.Store with one sorted set per key so every
// replica shares the same window. Members are scored by hit time in
// microseconds.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed bucket store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Allow counts the live part of the window and records the hit only when under
// limit. Reads happen under WATCH and every write is queued in MULTI, so
// concurrent callers cannot both take the last slot.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)
	live := &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}

	var result *ratelimit.Result
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		count, err := tx.ZCount(ctx, key, live.Min, live.Max).Result()
		if err != nil {
			return err
		}

		oldest := now
		if count > 0 {
			first, err := tx.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min: live.Min, Max: live.Max, Count: 1,
			}).Result()
			if err != nil {
				return err
			}
			if len(first) == 1 {
				oldest = time.UnixMicro(int64(first[0].Score))
			}
		}
		resetAt := oldest.Add(window)

		if int(count) >= limit {
			result = &ratelimit.Result{
				Allowed:    false,
				Limit:      limit,
				ResetAt:    resetAt,
				RetryAfter: ratelimit.RetryAfter(resetAt.Sub(now)),
			}
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
			pipe.PExpire(ctx, key, window)
			return nil
		})
		if err != nil {
			return err
		}
		result = &ratelimit.Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - int(count) - 1,
			ResetAt:   resetAt,
		}
		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return result, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alumni/internal/twofactor"
	"alumni/pkg/platform/sentinel"
)

const (
	keyPrefix = "alumni:2fa:"
	// usedRetention keeps consumed sessions visible after use so a replay is
	// reported as consumed rather than missing.
	usedRetention = time.Hour
)

// RedisStore keeps sessions as JSON values that expire with the session.
// It cannot join SQL transactions: a consume is final even if the caller's
// transaction later rolls back.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(digest string) string { return keyPrefix + digest }

func (s *RedisStore) Create(ctx context.Context, digest string, sess twofactor.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode 2fa session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt) + usedRetention
	ok, err := s.client.SetNX(ctx, key(digest), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store 2fa session: %w", err)
	}
	if !ok {
		return fmt.Errorf("store 2fa session: %w", sentinel.ErrConflict)
	}
	return nil
}

// Consume uses WATCH/MULTI so concurrent consumers of one session race on
// the key; the loser's EXEC fails and is reported as already used.
func (s *RedisStore) Consume(ctx context.Context, digest, subject string, now time.Time) (twofactor.Session, error) {
	k := key(digest)
	var consumed twofactor.Session

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load 2fa session: %w", err)
		}
		var sess twofactor.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return fmt.Errorf("decode 2fa session: %w", err)
		}
		if sess.Subject != subject {
			return sentinel.ErrInvalidState
		}
		switch sess.StatusAt(now) {
		case twofactor.StatusExpired:
			return sentinel.ErrExpired
		case twofactor.StatusConsumed:
			return sentinel.ErrAlreadyUsed
		}

		used := now.UTC()
		sess.UsedAt = &used
		updated, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode 2fa session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, k, updated, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		consumed = sess
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return twofactor.Session{}, sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return twofactor.Session{}, err
	}
	return consumed, nil
}

// DeleteExpired is a no-op: Redis expires session keys itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

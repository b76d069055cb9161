//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/pkg/testutil/containers"
)

func TestPostgresAdvisoryLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)

	first := NewPostgresAdvisory(pg.DB)
	second := NewPostgresAdvisory(pg.DB)

	release, ok, err := first.TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	assert.False(t, ok, "advisory locks are held per session")

	require.NoError(t, release(ctx))
	release, ok, err = second.TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(ctx))
}

func TestRedisLeaseLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := NewRedis(rc.Client, time.Minute)
	release, ok, err := l.TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = NewRedis(rc.Client, time.Minute).TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := rc.Client.TTL(ctx, redisKeyPrefix+"alumni-audit-retention").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, release(ctx))
	_, ok, err = l.TryLock(ctx, "alumni-audit-retention")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReleaseKeepsForeignLease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := NewRedis(rc.Client, time.Minute)
	release, ok, err := l.TryLock(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate lease expiry followed by another holder.
	require.NoError(t, rc.Client.Set(ctx, redisKeyPrefix+"job", "other-holder", time.Minute).Err())
	require.NoError(t, release(ctx))

	val, err := rc.Client.Get(ctx, redisKeyPrefix+"job").Result()
	require.NoError(t, err)
	assert.Equal(t, "other-holder", val)
}

func TestRedisLeaseIsRenewedWhileHeld(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := NewRedis(rc.Client, time.Second, WithRenewInterval(200*time.Millisecond))
	release, ok, err := l.TryLock(ctx, "long-run")
	require.NoError(t, err)
	require.True(t, ok)

	// Outlive the original lease several times over.
	time.Sleep(3 * time.Second)

	_, ok, err = NewRedis(rc.Client, time.Second).TryLock(ctx, "long-run")
	require.NoError(t, err)
	assert.False(t, ok, "a renewed lease stays with its holder")

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "release is idempotent")

	exists, err := rc.Client.Exists(ctx, redisKeyPrefix+"long-run").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// A lease that is never renewed expires on its own.
	other := NewRedis(rc.Client, 500*time.Millisecond, WithRenewInterval(time.Hour))
	_, ok, err = other.TryLock(ctx, "long-run")
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(time.Second)
	exists, err = rc.Client.Exists(ctx, redisKeyPrefix+"long-run").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisRenewalStopsWhenLeaseIsLost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := NewRedis(rc.Client, time.Minute, WithRenewInterval(100*time.Millisecond))
	release, ok, err := l.TryLock(ctx, "taken")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, rc.Client.Set(ctx, redisKeyPrefix+"taken", "other-holder", 2*time.Second).Err())
	time.Sleep(500 * time.Millisecond)

	ttl, err := rc.Client.PTTL(ctx, redisKeyPrefix+"taken").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 2*time.Second, "a foreign lease is never extended")
	require.NoError(t, release(ctx))
}

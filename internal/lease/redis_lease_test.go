package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLease(t *testing.T, ttl time.Duration) (*RedisLease, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lease, err := NewRedisLease(RedisLeaseConfig{Client: client, TTL: ttl})
	require.NoError(t, err)
	return lease, server
}

func TestNewRedisLeaseRequiresClient(t *testing.T) {
	_, err := NewRedisLease(RedisLeaseConfig{})
	require.Error(t, err)
}

func TestAcquireIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	lease, server := newTestLease(t, time.Minute)

	held, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, server.Exists(DefaultKey))

	_, ok, err = lease.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, held.Release(ctx))
	assert.False(t, server.Exists(DefaultKey))

	_, ok, err = lease.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLeaseCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	lease, server := newTestLease(t, time.Second)

	stale, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	server.FastForward(2 * time.Second)

	_, ok, err = lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, stale.Extend(ctx), ErrNotHeld)
	assert.ErrorIs(t, stale.Release(ctx), ErrNotHeld)
	assert.True(t, server.Exists(DefaultKey), "stale release must not delete the new holder's key")
}

func TestExtendKeepsLeaseAlivePastItsTTL(t *testing.T) {
	ctx := context.Background()
	lease, server := newTestLease(t, 2*time.Second)

	held, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	for step := 0; step < 3; step++ {
		server.FastForward(1500 * time.Millisecond)
		require.NoError(t, held.Extend(ctx))
		assert.Equal(t, 2*time.Second, server.TTL(DefaultKey))
	}

	_, ok, err = lease.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "an extended lease must still exclude other holders")

	require.NoError(t, held.Release(ctx))
	assert.False(t, server.Exists(DefaultKey))
}

func TestAcquireSurfacesRedisErrors(t *testing.T) {
	lease, server := newTestLease(t, time.Minute)
	server.Close()

	_, ok, err := lease.Acquire(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

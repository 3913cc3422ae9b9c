package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheWithClient(client, nil)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))

	val, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), val)
}

func TestRedisCache_GetMiss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	require.NoError(t, c.Delete(ctx, "key"))

	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetTTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_IncrementWithExpiry(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	count, err := c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRedisCache_IncrementSetsExpiryOnCreation(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	_, err := c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	ttl := mr.TTL("counter")
	assert.Equal(t, time.Minute, ttl)

	// A second increment must not reset the window.
	mr.FastForward(30 * time.Second)
	_, err = c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("counter"))
}

func TestRedisCache_IncrementAfterWindowRestartsCounter(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(2 * time.Minute)

	count, err := c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, mr.TTL("counter"))
}

func TestRedisCache_MinimumExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	// Sub-second windows round up so the key never becomes permanent.
	_, err := c.IncrementWithExpiry(ctx, "counter", 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, time.Second, mr.TTL("counter"))
}

func TestRedisCache_BackendDown(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	mr.Close()

	_, err := c.Get(ctx, "key")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	_, err = c.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	assert.Error(t, err)
}

func TestRedisCache_CloseIdempotent(t *testing.T) {
	c, _ := newTestRedisCache(t)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopaper/gateway/internal/cache"
)

func newRedisLimiter(t *testing.T) (*CacheLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedisCacheWithClient(client, nil)
	t.Cleanup(func() { _ = c.Close() })

	return NewCacheLimiter(c), mr
}

func TestCacheLimiter_AllowsUpToQuota(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.CheckAndIncrement(ctx, "client", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.CheckAndIncrement(ctx, "client", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "request over quota should be denied")
}

func TestCacheLimiter_WindowResets(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "client", 3, time.Minute)
		require.NoError(t, err)
	}

	allowed, err := limiter.CheckAndIncrement(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.CheckAndIncrement(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "fresh window should admit requests again")
}

func TestCacheLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	allowed, err := limiter.CheckAndIncrement(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.CheckAndIncrement(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = limiter.CheckAndIncrement(ctx, "client-b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "another client must have its own counter")
}

func TestCacheLimiter_ConcurrentIncrementsAreExact(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	const total = 50
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limiter.CheckAndIncrement(ctx, "concurrent", total+1, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := limiter.CurrentCount(ctx, "concurrent")
	require.NoError(t, err)
	assert.Equal(t, int64(total), count)
}

func TestCacheLimiter_FailsOpenOnBackendError(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()

	mr.Close()

	allowed, err := limiter.CheckAndIncrement(ctx, "client", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "backend failure must not reject traffic")
}

func TestCacheLimiter_FailsOpenWithBreakerTripped(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()

	mr.Close()

	// Enough failures to trip the default breaker; every attempt still
	// reports allowed.
	for i := 0; i < 10; i++ {
		allowed, err := limiter.CheckAndIncrement(ctx, "client", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestCacheLimiter_CurrentCountAndReset(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	count, err := limiter.CurrentCount(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "no window yet")

	for i := 0; i < 3; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "client", 10, time.Minute)
		require.NoError(t, err)
	}

	count, err = limiter.CurrentCount(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, limiter.Reset(ctx, "client"))

	count, err = limiter.CurrentCount(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLocalLimiter_BurstThenDeny(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.CheckAndIncrement(ctx, "client", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst", i+1)
	}

	allowed, err := limiter.CheckAndIncrement(ctx, "client", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalLimiter_Reset(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	allowed, err := limiter.CheckAndIncrement(ctx, "client", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.CheckAndIncrement(ctx, "client", 1, time.Hour)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "client"))

	allowed, err = limiter.CheckAndIncrement(ctx, "client", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, allowed)
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nopaper/gateway/internal/config"
	"github.com/nopaper/gateway/internal/observability"
)

// incrementWithExpiryScript atomically increments a counter and sets its
// expiry only when the increment created the key. This closes the window
// where a crash between INCR and EXPIRE would leave an orphaned permanent
// counter.
// KEYS[1] = key
// ARGV[1] = delta
// ARGV[2] = expiration in seconds
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger observability.Logger
	closed bool
	mu     sync.Mutex
}

// NewRedisCache creates a new Redis cache from configuration. The
// connection is verified with a ping before the cache is returned.
func NewRedisCache(cfg *config.RedisConfig, logger observability.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout.Duration(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis cache initialized",
		observability.String("address", cfg.Address),
		observability.Int("db", cfg.DB),
	)

	return &RedisCache{client: client, logger: logger}, nil
}

// NewRedisCacheWithClient wraps an existing Redis client. Used by tests
// running against miniredis.
func NewRedisCacheWithClient(client *redis.Client, logger observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisCache{client: client, logger: logger}
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() {
		cacheOperationDuration.WithLabelValues("redis", "get").Observe(time.Since(start).Seconds())
	}()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMissesTotal.WithLabelValues("redis").Inc()
		cacheOperationsTotal.WithLabelValues("redis", "get", "miss").Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		cacheOperationsTotal.WithLabelValues("redis", "get", "error").Inc()
		c.logger.Error("redis get failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	cacheHitsTotal.WithLabelValues("redis").Inc()
	cacheOperationsTotal.WithLabelValues("redis", "get", "success").Inc()
	return val, nil
}

// Set stores a value in the cache with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		cacheOperationDuration.WithLabelValues("redis", "set").Observe(time.Since(start).Seconds())
	}()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cacheOperationsTotal.WithLabelValues("redis", "set", "error").Inc()
		c.logger.Error("redis set failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return fmt.Errorf("redis set error: %w", err)
	}

	cacheOperationsTotal.WithLabelValues("redis", "set", "success").Inc()
	return nil
}

// Delete removes a value from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer func() {
		cacheOperationDuration.WithLabelValues("redis", "delete").Observe(time.Since(start).Seconds())
	}()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		cacheOperationsTotal.WithLabelValues("redis", "delete", "error").Inc()
		return fmt.Errorf("redis del error: %w", err)
	}

	cacheOperationsTotal.WithLabelValues("redis", "delete", "success").Inc()
	return nil
}

// IncrementWithExpiry implements Cache using a Lua script for atomicity.
func (c *RedisCache) IncrementWithExpiry(
	ctx context.Context,
	key string,
	delta int64,
	expiration time.Duration,
) (int64, error) {
	start := time.Now()
	defer func() {
		cacheOperationDuration.WithLabelValues("redis", "increment_with_expiry").Observe(time.Since(start).Seconds())
	}()

	expirationSecs := int64(expiration.Seconds())
	if expirationSecs < 1 {
		expirationSecs = 1
	}

	result, err := incrementWithExpiryScript.Run(ctx, c.client, []string{key}, delta, expirationSecs).Result()
	if err != nil {
		cacheOperationsTotal.WithLabelValues("redis", "increment_with_expiry", "error").Inc()
		return 0, fmt.Errorf("redis script error: %w", err)
	}

	val, ok := result.(int64)
	if !ok {
		cacheOperationsTotal.WithLabelValues("redis", "increment_with_expiry", "error").Inc()
		return 0, fmt.Errorf("redis script returned unexpected type: %T", result)
	}

	cacheOperationsTotal.WithLabelValues("redis", "increment_with_expiry", "success").Inc()
	return val, nil
}

// Close closes the Redis connection. Close is idempotent.
func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Client returns the underlying Redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

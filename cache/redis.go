package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/healthops/health"
)

// DefaultSlowThreshold is the ping latency above which a Redis cache
// reports degraded.
const DefaultSlowThreshold = 100 * time.Millisecond

// RedisConfig configures a Redis-backed cache.
type RedisConfig struct {
	// Name identifies the cache in health reports. Default: "redis-cache".
	Name string

	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the Redis password (optional).
	Password string

	// DB is the Redis database number.
	DB int

	// Prefix is prepended to every key.
	Prefix string

	// SlowThreshold marks the cache degraded when a ping takes longer.
	// Default: DefaultSlowThreshold
	SlowThreshold time.Duration

	// OpTimeout bounds each Get/Set/Delete. Default: 2s.
	OpTimeout time.Duration
}

// RedisCache stores values in Redis.
type RedisCache struct {
	client *redis.Client
	config RedisConfig

	counters
}

var (
	_ Cache          = (*RedisCache)(nil)
	_ StatsReporter  = (*RedisCache)(nil)
	_ health.Checker = (*RedisCache)(nil)
)

// NewRedisCache creates a Redis cache. It does not contact the server;
// reachability is reported by Check.
func NewRedisCache(config RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	return NewRedisCacheWithClient(client, config)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, config RedisConfig) *RedisCache {
	if config.Name == "" {
		config.Name = "redis-cache"
	}
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = DefaultSlowThreshold
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 2 * time.Second
	}
	return &RedisCache{client: client, config: config}
}

// Get returns the value for key. Backend errors are counted as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.config.Prefix+key).Bytes()
	if err != nil {
		c.miss()
		return nil, false
	}
	c.hit()
	return val, true
}

// Set stores value for ttl. A ttl <= 0 is ignored.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.config.Prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %q: %w", key, err)
	}
	c.set()
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, c.config.Prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: redis delete %q: %w", key, err)
	}
	return nil
}

// Stats implements StatsReporter. Size is the number of keys in the
// selected database, or 0 when Redis is unreachable.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.OpTimeout)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		size = 0
	}
	return c.snapshot(int(size))
}

// Name implements health.Checker.
func (c *RedisCache) Name() string {
	return c.config.Name
}

// Check implements health.Checker: a failed ping is unhealthy and a ping
// slower than SlowThreshold is degraded.
func (c *RedisCache) Check(ctx context.Context) health.Result {
	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)

	pool := c.client.PoolStats()
	details := map[string]any{
		"backend":    "redis",
		"addr":       c.config.Addr,
		"latencyMs":  latency.Milliseconds(),
		"totalConns": pool.TotalConns,
		"idleConns":  pool.IdleConns,
		"timeouts":   pool.Timeouts,
	}

	if err != nil {
		return health.Unhealthy("redis ping failed", fmt.Errorf("cache: redis ping: %w", err)).WithDetails(details)
	}
	details["hitRatio"] = c.snapshot(0).HitRatio()
	if latency > c.config.SlowThreshold {
		return health.Degraded(fmt.Sprintf("redis ping took %s", latency.Round(time.Millisecond))).WithDetails(details)
	}
	return health.Healthy("redis reachable").WithDetails(details)
}

// Client returns the underlying client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	SetSyncStatus(ctx context.Context, orgSlug, status string, ttl time.Duration) error
	GetSyncStatus(ctx context.Context, orgSlug string) (string, bool, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// SetSyncStatus publishes an informational in-flight marker for an
// organization refresh. It is never consulted as a lock; two tenants on the
// same org may both dispatch, and the marker just reflects the latest one.
func (c *RedisCache) SetSyncStatus(ctx context.Context, orgSlug, status string, ttl time.Duration) error {
	return c.client.Set(ctx, SyncStatusKey(orgSlug), status, ttl).Err()
}

func (c *RedisCache) GetSyncStatus(ctx context.Context, orgSlug string) (string, bool, error) {
	val, err := c.client.Get(ctx, SyncStatusKey(orgSlug)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

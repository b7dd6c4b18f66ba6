// internal/cache/status_cache.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
)

// StatusCache caches terminal order statuses by idempotency key so that
// reconciliation can skip the supplier's status endpoint for keys whose
// outcome is already known.
type StatusCache interface {
	Get(ctx context.Context, idempotencyKey string) (domain.OrderStatus, bool, error)
	Set(ctx context.Context, idempotencyKey string, status domain.OrderStatus) error
}

// NewStatusCache returns a Redis-backed cache when caching is enabled and the
// server is reachable, otherwise a noop cache.
func NewStatusCache(cfg config.CacheConfig) (StatusCache, error) {
	if !cfg.Enabled {
		return NewNoopStatusCache(), nil
	}
	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisStatusCache{client: client, ttl: ttl}, nil
}

type redisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func cacheKey(idempotencyKey string) string {
	return fmt.Sprintf("replenisher:order_status:%s", idempotencyKey)
}

func (c *redisStatusCache) Get(ctx context.Context, key string) (domain.OrderStatus, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get failed: %w", err)
	}
	return domain.OrderStatus(val), true, nil
}

func (c *redisStatusCache) Set(ctx context.Context, key string, status domain.OrderStatus) error {
	// Only terminal statuses are worth caching; pending can still change.
	if !status.Terminal() {
		return nil
	}
	if err := c.client.Set(ctx, cacheKey(key), string(status), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

type noopStatusCache struct{}

// NewNoopStatusCache returns a cache that stores nothing.
func NewNoopStatusCache() StatusCache {
	return noopStatusCache{}
}

func (noopStatusCache) Get(context.Context, string) (domain.OrderStatus, bool, error) {
	return "", false, nil
}

func (noopStatusCache) Set(context.Context, string, domain.OrderStatus) error {
	return nil
}

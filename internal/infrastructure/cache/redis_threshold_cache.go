package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/shared"
)

const thresholdCacheKey = "wms:approval:thresholds"

// RedisThresholdCache caches the approval bracket table in Redis so every
// instance rebuilds its router from the same snapshot. A miss surfaces as
// NOT_FOUND; callers fall back to the repository.
type RedisThresholdCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisThresholdCache creates a Redis-backed threshold cache
func NewRedisThresholdCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisThresholdCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisThresholdCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached bracket table, or NOT_FOUND on a miss
func (c *RedisThresholdCache) Get(ctx context.Context) ([]approval.Threshold, error) {
	data, err := c.client.Get(ctx, thresholdCacheKey).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("threshold cache get: %w", err)
	}

	var thresholds []approval.Threshold
	if err := json.Unmarshal(data, &thresholds); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it
		c.logger.Warn("Discarding corrupt threshold cache entry", zap.Error(err))
		return nil, shared.ErrNotFound
	}
	return thresholds, nil
}

// Set stores the bracket table with the configured TTL
func (c *RedisThresholdCache) Set(ctx context.Context, thresholds []approval.Threshold) error {
	data, err := json.Marshal(thresholds)
	if err != nil {
		return fmt.Errorf("threshold cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, thresholdCacheKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("threshold cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached table
func (c *RedisThresholdCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, thresholdCacheKey).Err(); err != nil {
		return fmt.Errorf("threshold cache invalidate: %w", err)
	}
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/shared"
)

// InMemoryThresholdCache caches the bracket table in process with a TTL.
// It suits single-instance deployments and tests; multi-instance
// deployments should use RedisThresholdCache so invalidations are shared.
type InMemoryThresholdCache struct {
	mu         sync.RWMutex
	thresholds []approval.Threshold
	expiresAt  time.Time
	ttl        time.Duration

	// Stats for monitoring
	hits   int64
	misses int64
}

// NewInMemoryThresholdCache creates a cache with the given TTL.
// A non-positive TTL means entries never expire until invalidated.
func NewInMemoryThresholdCache(ttl time.Duration) *InMemoryThresholdCache {
	return &InMemoryThresholdCache{ttl: ttl}
}

// Get returns the cached bracket table, NOT_FOUND on miss or expiry
func (c *InMemoryThresholdCache) Get(ctx context.Context) ([]approval.Threshold, error) {
	c.mu.RLock()
	thresholds := c.thresholds
	expired := c.ttl > 0 && time.Now().After(c.expiresAt)
	c.mu.RUnlock()

	if thresholds == nil || expired {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, shared.ErrNotFound
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	result := make([]approval.Threshold, len(thresholds))
	copy(result, thresholds)
	return result, nil
}

// Set stores the bracket table
func (c *InMemoryThresholdCache) Set(ctx context.Context, thresholds []approval.Threshold) error {
	stored := make([]approval.Threshold, len(thresholds))
	copy(stored, thresholds)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = stored
	c.expiresAt = time.Now().Add(c.ttl)
	return nil
}

// Invalidate drops the cached table
func (c *InMemoryThresholdCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = nil
	return nil
}

// Stats returns hit and miss counters
func (c *InMemoryThresholdCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

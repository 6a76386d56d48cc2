package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsKey = "feedr:admin:stats"

// StatsCache keeps the computed admin dashboard in Redis for a short TTL so
// repeated dashboard loads do not rescan both collections.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a StatsCache with the given TTL. A nil client
// disables caching; Get always misses and Set is a no-op.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

// Get unmarshals the cached stats into dest. Returns false on a miss or any
// Redis error; a flaky cache must never fail the dashboard.
func (c *StatsCache) Get(ctx context.Context, dest interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// Set stores the stats under the cache TTL.
func (c *StatsCache) Set(ctx context.Context, stats interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats for cache: %w", err)
	}
	if err := c.client.Set(ctx, statsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stats: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats. Called after writes that change the
// aggregate counts.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, statsKey).Err()
}

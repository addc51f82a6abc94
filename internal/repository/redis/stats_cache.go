package redis

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"monitor-engine/internal/client"
	"monitor-engine/internal/util"
)

const statsPrefix = "stats_cache:"

// StatsCache holds short-TTL JSON snapshots of expensive aggregations, such
// as audit stats. Callers treat a miss as "recompute".
type StatsCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewStatsCache(client *client.RedisClient, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get unmarshals a cached snapshot into dest. Returns false on miss or decode
// failure; a stale cache never breaks the read path.
func (c *StatsCache) Get(key string, dest interface{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, statsPrefix+key)
	if err != nil {
		return false
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		util.Warn("Discarding undecodable stats cache entry",
			zap.String("key", key),
			zap.Error(err))
		return false
	}

	return true
}

func (c *StatsCache) Set(key string, value interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(value)
	if err != nil {
		util.Warn("Failed to marshal stats cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, statsPrefix+key, payload, c.ttl); err != nil {
		util.Warn("Failed to write stats cache entry",
			zap.String("key", key),
			zap.Error(err))
	}
}

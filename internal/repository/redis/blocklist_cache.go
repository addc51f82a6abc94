package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"monitor-engine/internal/client"
	"monitor-engine/internal/util"
)

const (
	blockedIPPrefix = "blocked_ip:"
	blockedIPTTL    = time.Hour
)

// BlocklistCache fronts the durable blocklist so hot-path lookups (is this
// source blocked?) skip Scylla. Entries expire and get re-warmed from the
// durable store on miss.
type BlocklistCache struct {
	client *client.RedisClient
}

func NewBlocklistCache(client *client.RedisClient) *BlocklistCache {
	return &BlocklistCache{client: client}
}

func (c *BlocklistCache) SetBlocked(ipAddress, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := blockedIPPrefix + ipAddress
	if err := c.client.Set(ctx, key, reason, blockedIPTTL); err != nil {
		util.Error("Failed to cache blocklist entry",
			zap.String("ip_address", ipAddress),
			zap.Error(err))
		return fmt.Errorf("failed to cache blocklist entry: %w", err)
	}

	util.Debug("Blocklist entry cached", zap.String("ip_address", ipAddress))
	return nil
}

func (c *BlocklistCache) IsBlocked(ipAddress string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, blockedIPPrefix+ipAddress)
	if err != nil {
		util.Error("Failed to check blocklist cache",
			zap.String("ip_address", ipAddress),
			zap.Error(err))
		return false, fmt.Errorf("failed to check blocklist cache: %w", err)
	}

	return exists, nil
}

func (c *BlocklistCache) Invalidate(ipAddress string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, blockedIPPrefix+ipAddress); err != nil {
		return fmt.Errorf("failed to invalidate blocklist cache: %w", err)
	}
	return nil
}

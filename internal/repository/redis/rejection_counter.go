package redis

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"monitor-engine/internal/client"
	"monitor-engine/internal/util"
)

const (
	rejectionPrefix = "sample_rejections:"
	rejectionTTL    = 24 * time.Hour
)

// RejectionCounter tracks rejected metric samples per source service. A
// producer that suddenly starts emitting garbage shows up here before anyone
// reads the logs.
type RejectionCounter struct {
	client *client.RedisClient
}

func NewRejectionCounter(client *client.RedisClient) *RejectionCounter {
	return &RejectionCounter{client: client}
}

func (c *RejectionCounter) Increment(sourceService string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, rejectionPrefix+sourceService, rejectionTTL)
	if err != nil {
		util.Error("Failed to increment rejection counter",
			zap.String("source_service", sourceService),
			zap.Error(err))
		return 0, err
	}

	return count, nil
}

func (c *RejectionCounter) Get(sourceService string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, rejectionPrefix+sourceService)
	if err != nil {
		// Missing key means no rejections in the window.
		return 0, nil
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Totals returns rejection counts for every source seen in the window.
func (c *RejectionCounter) Totals() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := c.client.ScanKeys(ctx, rejectionPrefix+"*", 100)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(keys))
	for _, key := range keys {
		val, err := c.client.Get(ctx, key)
		if err != nil {
			continue
		}
		count, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		totals[key[len(rejectionPrefix):]] = count
	}

	return totals, nil
}

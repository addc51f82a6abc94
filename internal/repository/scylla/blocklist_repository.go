package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

type blocklistRepository struct {
	client *ScyllaClient
}

func NewBlocklistRepository(client *ScyllaClient) BlocklistRepository {
	return &blocklistRepository{client: client}
}

// Upsert inserts or refreshes a blocklist entry. CQL inserts overwrite on the
// same primary key, which gives re-blocking its idempotent refresh semantics.
func (r *blocklistRepository) Upsert(ctx context.Context, entry *model.IPBlockEntry) error {
	if entry.BlockedAt.IsZero() {
		entry.BlockedAt = time.Now().UTC()
	}

	query := r.client.Prepared.UpsertBlockedIP.Bind(
		entry.IPAddress, entry.Reason, entry.BlockedBy,
		entry.BlockedAt, entry.SecurityEventID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert blocklist entry",
			zap.String("ip_address", entry.IPAddress),
			zap.Error(err))
		return fmt.Errorf("failed to upsert blocklist entry: %w", err)
	}

	return nil
}

func (r *blocklistRepository) Get(ctx context.Context, ipAddress string) (*model.IPBlockEntry, error) {
	entry := &model.IPBlockEntry{}

	query := r.client.Prepared.GetBlockedIP.Bind(ipAddress).WithContext(ctx)

	err := query.Scan(&entry.IPAddress, &entry.Reason, &entry.BlockedBy,
		&entry.BlockedAt, &entry.SecurityEventID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("blocklist entry %s: %w", ipAddress, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blocklist entry: %w", err)
	}

	entry.BlockedAt = entry.BlockedAt.UTC()
	return entry, nil
}

func (r *blocklistRepository) List(ctx context.Context) ([]*model.IPBlockEntry, error) {
	iter := r.client.Prepared.ListBlockedIPs.WithContext(ctx).Iter()

	var entries []*model.IPBlockEntry
	for {
		entry := &model.IPBlockEntry{}
		ok := iter.Scan(&entry.IPAddress, &entry.Reason, &entry.BlockedBy,
			&entry.BlockedAt, &entry.SecurityEventID)
		if !ok {
			break
		}
		entry.BlockedAt = entry.BlockedAt.UTC()
		entries = append(entries, entry)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list blocklist entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list blocklist entries: %w", err)
	}

	return entries, nil
}

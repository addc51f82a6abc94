package scylla

import (
	"context"
	"time"

	"github.com/google/uuid"

	"monitor-engine/internal/model"
)

// AlertRepository persists alerts and the open-alert dedup index.
type AlertRepository interface {
	Save(ctx context.Context, alert *model.Alert) error
	Update(ctx context.Context, alert *model.Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	GetOpenByKey(ctx context.Context, key string) (*model.Alert, error)
	List(ctx context.Context, daysBack, limit int) ([]*model.Alert, error)
}

// EventRepository persists security events. Payloads are envelope-encrypted
// before they reach disk.
type EventRepository interface {
	Save(ctx context.Context, event *model.SecurityEvent) error
	Update(ctx context.Context, event *model.SecurityEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SecurityEvent, error)
	Delete(ctx context.Context, event *model.SecurityEvent) error
	List(ctx context.Context, daysBack, limit int) ([]*model.SecurityEvent, error)
}

// BlocklistRepository persists blocked source addresses. Upsert semantics make
// re-blocking idempotent.
type BlocklistRepository interface {
	Upsert(ctx context.Context, entry *model.IPBlockEntry) error
	Get(ctx context.Context, ipAddress string) (*model.IPBlockEntry, error)
	List(ctx context.Context) ([]*model.IPBlockEntry, error)
}

// MetricRepository persists accepted metric samples for the read API. Rows
// carry a TTL, so no explicit cleanup is needed.
type MetricRepository interface {
	Save(ctx context.Context, sample *model.MetricSample) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]*model.MetricSample, error)
}

// timePtr converts a scanned timestamp to a nullable field. Scylla returns
// the zero time for unset columns.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// timeVal converts a nullable field to a storable timestamp.
func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.UTC()
}

package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/encryption"
	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

type eventRepository struct {
	client    *ScyllaClient
	encryptor *encryption.PayloadEncryptor
}

func NewEventRepository(client *ScyllaClient, encryptor *encryption.PayloadEncryptor) EventRepository {
	return &eventRepository{
		client:    client,
		encryptor: encryptor,
	}
}

// encodeEventData envelope-encrypts the typed payload for storage.
func (r *eventRepository) encodeEventData(ctx context.Context, data model.EventData) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event data: %w", err)
	}

	envelope, err := r.encryptor.EncryptPayload(ctx, plaintext)
	if err != nil {
		return "", err
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal encrypted payload: %w", err)
	}

	return string(encoded), nil
}

func (r *eventRepository) decodeEventData(ctx context.Context, stored string) (model.EventData, error) {
	var data model.EventData
	if stored == "" {
		return data, nil
	}

	var envelope encryption.EncryptedPayload
	if err := json.Unmarshal([]byte(stored), &envelope); err != nil {
		return data, fmt.Errorf("failed to unmarshal encrypted payload: %w", err)
	}

	plaintext, err := r.encryptor.DecryptPayload(ctx, &envelope)
	if err != nil {
		return data, err
	}

	if err := json.Unmarshal(plaintext, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	return data, nil
}

func (r *eventRepository) Save(ctx context.Context, event *model.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	stored, err := r.encodeEventData(ctx, event.EventData)
	if err != nil {
		return err
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.InsertEvent.Statement(),
		event.ID, event.EventBucket, event.EventType, event.UserEmail,
		event.IPAddress, event.ThreatLevel, string(event.Severity),
		string(event.Status), stored, event.CreatedAt,
		timeVal(event.ResolvedAt), event.ResolvedBy, event.ResolutionNotes,
		timeVal(event.ReopenedAt), event.ReopenedBy, event.ReopenReason)

	batch.Query(r.client.Prepared.InsertEventByDay.Statement(),
		dayKey(event.CreatedAt), event.CreatedAt, event.ID, event.EventBucket,
		event.EventType, event.UserEmail, event.IPAddress, event.ThreatLevel,
		string(event.Severity), string(event.Status), stored,
		timeVal(event.ResolvedAt), event.ResolvedBy, event.ResolutionNotes,
		timeVal(event.ReopenedAt), event.ReopenedBy, event.ReopenReason)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to save security event",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to save security event: %w", err)
	}

	return nil
}

func (r *eventRepository) Update(ctx context.Context, event *model.SecurityEvent) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.UpdateEvent.Statement(),
		string(event.Status), timeVal(event.ResolvedAt), event.ResolvedBy,
		event.ResolutionNotes, timeVal(event.ReopenedAt), event.ReopenedBy,
		event.ReopenReason, event.ID)

	batch.Query(r.client.Prepared.UpdateEventByDay.Statement(),
		string(event.Status), timeVal(event.ResolvedAt), event.ResolvedBy,
		event.ResolutionNotes, timeVal(event.ReopenedAt), event.ReopenedBy,
		event.ReopenReason, dayKey(event.CreatedAt), event.CreatedAt, event.ID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to update security event",
			zap.String("event_id", event.ID.String()),
			zap.String("status", string(event.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to update security event: %w", err)
	}

	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SecurityEvent, error) {
	event := &model.SecurityEvent{}
	var resolvedAt, reopenedAt time.Time
	var severity, status, stored string

	query := r.client.Prepared.GetEventByID.Bind(id).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&event.ID, &event.EventBucket, &event.EventType, &event.UserEmail,
		&event.IPAddress, &event.ThreatLevel, &severity, &status, &stored,
		&event.CreatedAt, &resolvedAt, &event.ResolvedBy,
		&event.ResolutionNotes, &reopenedAt, &event.ReopenedBy,
		&event.ReopenReason)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("security event %s: %w", id, model.ErrNotFound)
		}
		util.Error("Failed to get security event",
			zap.String("event_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get security event: %w", err)
	}

	event.Severity = model.Severity(severity)
	event.Status = model.EventStatus(status)
	event.ResolvedAt = timePtr(resolvedAt)
	event.ReopenedAt = timePtr(reopenedAt)
	event.CreatedAt = event.CreatedAt.UTC()

	event.EventData, err = r.decodeEventData(ctx, stored)
	if err != nil {
		return nil, err
	}

	return event, nil
}

// Delete removes the event from both tables. Hard delete: no tombstone row
// is kept in the engine itself, only the audit trail records the removal.
func (r *eventRepository) Delete(ctx context.Context, event *model.SecurityEvent) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.DeleteEvent.Statement(), event.ID)
	batch.Query(r.client.Prepared.DeleteEventByDay.Statement(),
		dayKey(event.CreatedAt), event.CreatedAt, event.ID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to delete security event",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to delete security event: %w", err)
	}

	return nil
}

func (r *eventRepository) List(ctx context.Context, daysBack, limit int) ([]*model.SecurityEvent, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	if limit <= 0 {
		limit = 100
	}

	events := make([]*model.SecurityEvent, 0, limit)
	for _, day := range recentDays(daysBack) {
		if len(events) >= limit {
			break
		}

		iter := r.client.Prepared.ListEventsByDay.
			Bind(day, limit-len(events)).
			WithContext(ctx).Iter()

		for {
			event := &model.SecurityEvent{}
			var resolvedAt, reopenedAt time.Time
			var severity, status, stored string

			ok := iter.Scan(
				&event.ID, &event.EventBucket, &event.EventType,
				&event.UserEmail, &event.IPAddress, &event.ThreatLevel,
				&severity, &status, &stored, &event.CreatedAt,
				&resolvedAt, &event.ResolvedBy, &event.ResolutionNotes,
				&reopenedAt, &event.ReopenedBy, &event.ReopenReason)
			if !ok {
				break
			}

			event.Severity = model.Severity(severity)
			event.Status = model.EventStatus(status)
			event.ResolvedAt = timePtr(resolvedAt)
			event.ReopenedAt = timePtr(reopenedAt)
			event.CreatedAt = event.CreatedAt.UTC()

			data, err := r.decodeEventData(ctx, stored)
			if err != nil {
				iter.Close()
				return nil, err
			}
			event.EventData = data

			events = append(events, event)
		}

		if err := iter.Close(); err != nil {
			util.Error("Failed to list security events", zap.String("day", day), zap.Error(err))
			return nil, fmt.Errorf("failed to list security events: %w", err)
		}
	}

	return events, nil
}

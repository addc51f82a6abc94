package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

type alertRepository struct {
	client *ScyllaClient
}

func NewAlertRepository(client *ScyllaClient) AlertRepository {
	return &alertRepository{client: client}
}

func (r *alertRepository) Save(ctx context.Context, alert *model.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	// Batch keeps the lookup table, the listing table and the dedup index
	// consistent.
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.InsertAlert.Statement(),
		alert.ID, alert.AlertType, string(alert.Severity), alert.Title,
		alert.Description, alert.SourceService, alert.MetricName,
		alert.MetricValue, alert.ThresholdValue, string(alert.Status),
		alert.AcknowledgedBy, timeVal(alert.AcknowledgedAt),
		timeVal(alert.ResolvedAt), alert.CreatedAt, alert.UpdatedAt)

	batch.Query(r.client.Prepared.InsertAlertByDay.Statement(),
		dayKey(alert.CreatedAt), alert.CreatedAt, alert.ID, alert.AlertType,
		string(alert.Severity), alert.Title, alert.Description,
		alert.SourceService, alert.MetricName, alert.MetricValue,
		alert.ThresholdValue, string(alert.Status), alert.AcknowledgedBy,
		timeVal(alert.AcknowledgedAt), timeVal(alert.ResolvedAt), alert.UpdatedAt)

	batch.Query(r.client.Prepared.SetOpenAlertKey.Statement(),
		alert.Key(), alert.ID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to save alert",
			zap.String("alert_id", alert.ID.String()),
			zap.String("alert_key", alert.Key()),
			zap.Error(err))
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

func (r *alertRepository) Update(ctx context.Context, alert *model.Alert) error {
	alert.UpdatedAt = time.Now().UTC()

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.UpdateAlert.Statement(),
		string(alert.Severity), alert.Title, alert.Description,
		alert.MetricValue, alert.ThresholdValue, string(alert.Status),
		alert.AcknowledgedBy, timeVal(alert.AcknowledgedAt),
		timeVal(alert.ResolvedAt), alert.UpdatedAt, alert.ID)

	batch.Query(r.client.Prepared.UpdateAlertByDay.Statement(),
		string(alert.Severity), alert.Title, alert.Description,
		alert.MetricValue, alert.ThresholdValue, string(alert.Status),
		alert.AcknowledgedBy, timeVal(alert.AcknowledgedAt),
		timeVal(alert.ResolvedAt), alert.UpdatedAt,
		dayKey(alert.CreatedAt), alert.CreatedAt, alert.ID)

	// A resolved alert no longer holds its dedup key.
	if !alert.IsOpen() {
		batch.Query(r.client.Prepared.DeleteOpenAlertKey.Statement(), alert.Key())
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to update alert",
			zap.String("alert_id", alert.ID.String()),
			zap.String("status", string(alert.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to update alert: %w", err)
	}

	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert := &model.Alert{}
	var acknowledgedAt, resolvedAt time.Time
	var severity, status string

	query := r.client.Prepared.GetAlertByID.Bind(id).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&alert.ID, &alert.AlertType, &severity, &alert.Title,
		&alert.Description, &alert.SourceService, &alert.MetricName,
		&alert.MetricValue, &alert.ThresholdValue, &status,
		&alert.AcknowledgedBy, &acknowledgedAt, &resolvedAt,
		&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("alert %s: %w", id, model.ErrNotFound)
		}
		util.Error("Failed to get alert by ID",
			zap.String("alert_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	alert.Severity = model.Severity(severity)
	alert.Status = model.AlertStatus(status)
	alert.AcknowledgedAt = timePtr(acknowledgedAt)
	alert.ResolvedAt = timePtr(resolvedAt)
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()

	return alert, nil
}

func (r *alertRepository) GetOpenByKey(ctx context.Context, key string) (*model.Alert, error) {
	var alertID uuid.UUID

	query := r.client.Prepared.GetOpenAlertKey.Bind(key).WithContext(ctx)
	if err := query.Scan(&alertID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("open alert for %s: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up open alert key: %w", err)
	}

	alert, err := r.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	// Stale index entries can linger if a resolve partially failed; treat
	// them as absent and let the caller open a fresh alert.
	if !alert.IsOpen() {
		return nil, fmt.Errorf("open alert for %s: %w", key, model.ErrNotFound)
	}

	return alert, nil
}

func (r *alertRepository) List(ctx context.Context, daysBack, limit int) ([]*model.Alert, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	if limit <= 0 {
		limit = 100
	}

	alerts := make([]*model.Alert, 0, limit)
	for _, day := range recentDays(daysBack) {
		if len(alerts) >= limit {
			break
		}

		iter := r.client.Prepared.ListAlertsByDay.
			Bind(day, limit-len(alerts)).
			WithContext(ctx).Iter()

		for {
			alert := &model.Alert{}
			var acknowledgedAt, resolvedAt time.Time
			var severity, status string

			ok := iter.Scan(
				&alert.ID, &alert.AlertType, &severity, &alert.Title,
				&alert.Description, &alert.SourceService, &alert.MetricName,
				&alert.MetricValue, &alert.ThresholdValue, &status,
				&alert.AcknowledgedBy, &acknowledgedAt, &resolvedAt,
				&alert.CreatedAt, &alert.UpdatedAt)
			if !ok {
				break
			}

			alert.Severity = model.Severity(severity)
			alert.Status = model.AlertStatus(status)
			alert.AcknowledgedAt = timePtr(acknowledgedAt)
			alert.ResolvedAt = timePtr(resolvedAt)
			alert.CreatedAt = alert.CreatedAt.UTC()
			alert.UpdatedAt = alert.UpdatedAt.UTC()
			alerts = append(alerts, alert)
		}

		if err := iter.Close(); err != nil {
			util.Error("Failed to list alerts", zap.String("day", day), zap.Error(err))
			return nil, fmt.Errorf("failed to list alerts: %w", err)
		}
	}

	return alerts, nil
}

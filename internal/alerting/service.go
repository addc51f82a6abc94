package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/bucketing"
	"monitor-engine/internal/client"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/model"
	"monitor-engine/internal/repository/scylla"
	"monitor-engine/internal/util"
)

// AlertListFilter narrows an alert listing. Zero values mean "all".
type AlertListFilter struct {
	Status   string
	Severity string
	Limit    int
}

func (f *AlertListFilter) validate() error {
	switch f.Status {
	case "", "all", string(model.AlertActive), string(model.AlertAcknowledged), string(model.AlertResolved):
	default:
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidFilter, f.Status)
	}
	switch f.Severity {
	case "", "all", string(model.SeverityLow), string(model.SeverityMedium),
		string(model.SeverityHigh), string(model.SeverityCritical):
	default:
		return fmt.Errorf("%w: unknown severity %q", model.ErrInvalidFilter, f.Severity)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return nil
}

// AlertService owns the alert state machine and the at-most-one-open-alert
// invariant. All mutations for a given (metric_name, source_service) key are
// serialized through a striped mutex, so check-then-act on the dedup index is
// atomic per key.
type AlertService struct {
	repo     scylla.AlertRepository
	hub      *hub.Hub
	producer *client.KafkaProducer
	buckets  *bucketing.Manager

	stripes     []sync.Mutex
	eventsTopic string
}

func NewAlertService(repo scylla.AlertRepository, h *hub.Hub, producer *client.KafkaProducer,
	buckets *bucketing.Manager, eventsTopic string) *AlertService {
	return &AlertService{
		repo:        repo,
		hub:         h,
		producer:    producer,
		buckets:     buckets,
		stripes:     make([]sync.Mutex, buckets.LockStripes()),
		eventsTopic: eventsTopic,
	}
}

func (s *AlertService) lockKey(key string) func() {
	stripe := &s.stripes[s.buckets.LockStripe(key)]
	stripe.Lock()
	return stripe.Unlock
}

// Ingest applies a breach verdict to the alert set. Normal verdicts are
// no-ops. A breach with an open alert for the same key updates that alert in
// place without touching its status; otherwise a fresh active alert opens.
func (s *AlertService) Ingest(ctx context.Context, sample *model.MetricSample, verdict Verdict) (*model.Alert, error) {
	if !verdict.Breaching() {
		return nil, nil
	}

	unlock := s.lockKey(sample.Key())
	defer unlock()

	threshold := sample.WarningThreshold
	if verdict.IsCritical {
		threshold = sample.CriticalThreshold
	}

	alert, err := s.repo.GetOpenByKey(ctx, sample.Key())
	switch {
	case err == nil:
		alert.MetricValue = sample.MetricValue
		alert.Severity = verdict.Severity
		alert.ThresholdValue = threshold
		alert.Description = breachDescription(sample, threshold)
		if err := s.repo.Update(ctx, alert); err != nil {
			return nil, err
		}

	case errors.Is(err, model.ErrNotFound):
		alert = &model.Alert{
			ID:             uuid.New(),
			AlertType:      sample.MetricType + "_threshold",
			Severity:       verdict.Severity,
			Title:          fmt.Sprintf("%s threshold breached", sample.MetricName),
			Description:    breachDescription(sample, threshold),
			SourceService:  sample.SourceService,
			MetricName:     sample.MetricName,
			MetricValue:    sample.MetricValue,
			ThresholdValue: threshold,
			Status:         model.AlertActive,
		}
		if err := s.repo.Save(ctx, alert); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	s.broadcast(ctx, "alert_breach", alert)
	return alert, nil
}

// Acknowledge marks an open alert as seen by an operator. Acknowledging an
// already acknowledged alert is an idempotent success; a resolved alert
// rejects the transition.
func (s *AlertService) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*model.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockKey(alert.Key())
	defer unlock()

	// Re-read under the stripe lock; a concurrent resolve may have landed.
	alert, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch alert.Status {
	case model.AlertResolved:
		return nil, fmt.Errorf("%w: cannot acknowledge resolved alert %s", model.ErrInvalidTransition, id)
	case model.AlertAcknowledged:
		return alert, nil
	}

	now := time.Now().UTC()
	alert.Status = model.AlertAcknowledged
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, err
	}

	util.Info("Alert acknowledged",
		zap.String("alert_id", id.String()),
		zap.String("actor", actor))

	s.broadcast(ctx, "alert_acknowledged", alert)
	return alert, nil
}

// Resolve closes an alert. Resolving twice is an idempotent success so
// double-clicks from concurrent admin sessions do not surface errors.
func (s *AlertService) Resolve(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockKey(alert.Key())
	defer unlock()

	alert, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if alert.Status == model.AlertResolved {
		return alert, nil
	}

	now := time.Now().UTC()
	alert.Status = model.AlertResolved
	alert.ResolvedAt = &now

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, err
	}

	util.Info("Alert resolved", zap.String("alert_id", id.String()))

	s.broadcast(ctx, "alert_resolved", alert)
	return alert, nil
}

// List returns recent alerts ordered by severity (critical first) then
// recency, plus listing statistics over the filtered set.
func (s *AlertService) List(ctx context.Context, filter AlertListFilter) ([]*model.Alert, model.AlertStats, error) {
	if err := filter.validate(); err != nil {
		return nil, model.AlertStats{}, err
	}

	alerts, err := s.repo.List(ctx, 7, filter.Limit)
	if err != nil {
		return nil, model.AlertStats{}, err
	}

	filtered := alerts[:0]
	for _, a := range alerts {
		if filter.Status != "" && filter.Status != "all" && string(a.Status) != filter.Status {
			continue
		}
		if filter.Severity != "" && filter.Severity != "all" && string(a.Severity) != filter.Severity {
			continue
		}
		filtered = append(filtered, a)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Severity.Rank() != filtered[j].Severity.Rank() {
			return filtered[i].Severity.Rank() < filtered[j].Severity.Rank()
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered, model.SummarizeAlerts(filtered), nil
}

// Get returns a single alert by id.
func (s *AlertService) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// broadcast pushes the mutated alert to live sessions and to the downstream
// events topic. Both are best effort: the store is the source of truth, and a
// failed fan-out must not fail the mutation.
func (s *AlertService) broadcast(ctx context.Context, action string, alert *model.Alert) {
	s.hub.Publish(model.StreamMessage{
		Type:   model.StreamNewAlerts,
		Alerts: []*model.Alert{alert},
	})

	if s.producer == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"action": action,
		"alert":  alert,
	})
	if err != nil {
		return
	}

	if err := s.producer.ProduceMessage(ctx, s.eventsTopic, []byte(alert.Key()), payload, map[string]string{
		"event_type": action,
	}); err != nil {
		util.Warn("Failed to publish alert event",
			zap.String("action", action),
			zap.String("alert_id", alert.ID.String()),
			zap.Error(err))
	}
}

func breachDescription(sample *model.MetricSample, threshold float64) string {
	return fmt.Sprintf("%s reported %s at %.2f%s (threshold %.2f%s)",
		sample.SourceService, sample.MetricName,
		sample.MetricValue, sample.MetricUnit,
		threshold, sample.MetricUnit)
}

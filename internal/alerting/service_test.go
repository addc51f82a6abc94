package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/bucketing"
	"monitor-engine/internal/config"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/model"
)

// fakeAlertRepo is an in-memory stand-in for the Scylla alert repository,
// including the open-alert dedup index.
type fakeAlertRepo struct {
	mu        sync.Mutex
	alerts    map[uuid.UUID]*model.Alert
	openByKey map[string]uuid.UUID
	saves     int
	updates   int
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{
		alerts:    make(map[uuid.UUID]*model.Alert),
		openByKey: make(map[string]uuid.UUID),
	}
}

func (r *fakeAlertRepo) Save(_ context.Context, alert *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.UpdatedAt = time.Now().UTC()
	stored := *alert
	r.alerts[alert.ID] = &stored
	r.openByKey[alert.Key()] = alert.ID
	r.saves++
	return nil
}

func (r *fakeAlertRepo) Update(_ context.Context, alert *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert.UpdatedAt = time.Now().UTC()
	stored := *alert
	r.alerts[alert.ID] = &stored
	if !alert.IsOpen() {
		delete(r.openByKey, alert.Key())
	}
	r.updates++
	return nil
}

func (r *fakeAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	alert := *stored
	return &alert, nil
}

func (r *fakeAlertRepo) GetOpenByKey(_ context.Context, key string) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.openByKey[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	stored, ok := r.alerts[id]
	if !ok || !stored.IsOpen() {
		return nil, model.ErrNotFound
	}
	alert := *stored
	return &alert, nil
}

func (r *fakeAlertRepo) List(_ context.Context, _, limit int) ([]*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Alert, 0, len(r.alerts))
	for _, stored := range r.alerts {
		alert := *stored
		out = append(out, &alert)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*AlertService, *fakeAlertRepo, *hub.Hub) {
	t.Helper()
	repo := newFakeAlertRepo()
	h := hub.NewHub(16)
	t.Cleanup(h.Close)
	buckets := bucketing.NewManager(&config.Config{
		Bucketing: config.BucketingConfig{EventBuckets: 16, LockStripes: 8},
	})
	return NewAlertService(repo, h, nil, buckets, "engine-events"), repo, h
}

func breachSample(value float64) *model.MetricSample {
	return &model.MetricSample{
		MetricType:        "system",
		MetricName:        "cpu_usage",
		MetricValue:       value,
		MetricUnit:        "%",
		SourceService:     "api-gateway",
		WarningThreshold:  70,
		CriticalThreshold: 90,
	}
}

func TestIngestNormalVerdictIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)

	s := breachSample(50)
	alert, err := svc.Ingest(context.Background(), s, Evaluate(s))

	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Zero(t, repo.saves)
}

func TestIngestOpensActiveAlert(t *testing.T) {
	svc, repo, _ := newTestService(t)

	s := breachSample(95)
	alert, err := svc.Ingest(context.Background(), s, Evaluate(s))

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertActive, alert.Status)
	assert.Equal(t, model.SeverityCritical, alert.Severity)
	assert.Equal(t, "system_threshold", alert.AlertType)
	assert.Equal(t, 90.0, alert.ThresholdValue)
	assert.Equal(t, 1, repo.saves)
}

func TestIngestDedupUpdatesOpenAlertInPlace(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	s1 := breachSample(75)
	first, err := svc.Ingest(ctx, s1, Evaluate(s1))
	require.NoError(t, err)

	s2 := breachSample(95)
	second, err := svc.Ingest(ctx, s2, Evaluate(s2))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.SeverityCritical, second.Severity)
	assert.Equal(t, 95.0, second.MetricValue)
	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, 1, repo.updates)
}

func TestIngestDedupSurvivesAcknowledge(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := breachSample(75)
	first, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	acked, err := svc.Acknowledge(ctx, first.ID, "ops@example.com")
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// A repeated breach must not reset an acknowledged alert to active.
	assert.Equal(t, model.AlertAcknowledged, second.Status)
	assert.Equal(t, acked.AcknowledgedBy, "ops@example.com")
}

func TestIngestAfterResolveOpensFreshAlert(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := breachSample(95)
	first, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.AlertActive, second.Status)
}

func TestAcknowledgeTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := breachSample(95)
	alert, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	acked, err := svc.Acknowledge(ctx, alert.ID, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, acked.Status)
	assert.Equal(t, "ops@example.com", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	// Second acknowledge is an idempotent success.
	again, err := svc.Acknowledge(ctx, alert.ID, "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", again.AcknowledgedBy)
}

func TestAcknowledgeResolvedAlertRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := breachSample(95)
	alert, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, alert.ID)
	require.NoError(t, err)

	_, err = svc.Acknowledge(ctx, alert.ID, "ops@example.com")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestResolveIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s := breachSample(95)
	alert, err := svc.Ingest(ctx, s, Evaluate(s))
	require.NoError(t, err)

	first, err := svc.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)

	second, err := svc.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedAt.Unix(), second.ResolvedAt.Unix())
}

func TestResolveUnknownAlert(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListFiltersAndSorts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, s := range []*model.MetricSample{
		{MetricType: "system", MetricName: "cpu_usage", MetricValue: 75,
			SourceService: "api", WarningThreshold: 70, CriticalThreshold: 90},
		{MetricType: "system", MetricName: "memory_usage", MetricValue: 95,
			SourceService: "api", WarningThreshold: 70, CriticalThreshold: 90},
	} {
		_, err := svc.Ingest(ctx, s, Evaluate(s))
		require.NoError(t, err)
	}

	alerts, stats, err := svc.List(ctx, AlertListFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 2, stats.Active)

	critOnly, _, err := svc.List(ctx, AlertListFilter{Severity: "critical"})
	require.NoError(t, err)
	require.Len(t, critOnly, 1)
	assert.Equal(t, "memory_usage", critOnly[0].MetricName)
}

func TestListRejectsUnknownFilterTokens(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.List(context.Background(), AlertListFilter{Status: "open"})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	_, _, err = svc.List(context.Background(), AlertListFilter{Severity: "urgent"})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestIngestConcurrentBreachesSameKey(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := breachSample(95)
			_, err := svc.Ingest(ctx, s, Evaluate(s))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The dedup invariant: one key, one open alert, no matter the race.
	assert.Equal(t, 1, repo.saves)
}

func TestIngestBroadcastsToHub(t *testing.T) {
	svc, _, h := newTestService(t)

	sub := h.Subscribe()
	defer sub.Close()

	// First frame is always the connected acknowledgment.
	connected := <-sub.Messages()
	assert.Equal(t, model.StreamConnected, connected.Type)

	s := breachSample(95)
	_, err := svc.Ingest(context.Background(), s, Evaluate(s))
	require.NoError(t, err)

	msg := <-sub.Messages()
	assert.Equal(t, model.StreamNewAlerts, msg.Type)
	require.Len(t, msg.Alerts, 1)
	assert.Equal(t, "cpu_usage", msg.Alerts[0].MetricName)
}

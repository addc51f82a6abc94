package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/model"
)

type fakeMetricRepo struct {
	samples []*model.MetricSample
	since   time.Time
}

func (r *fakeMetricRepo) Save(_ context.Context, sample *model.MetricSample) error {
	r.samples = append(r.samples, sample)
	return nil
}

func (r *fakeMetricRepo) ListSince(_ context.Context, since time.Time, _ int) ([]*model.MetricSample, error) {
	r.since = since
	return r.samples, nil
}

func storedSample(name, metricType string, value float64, age time.Duration) *model.MetricSample {
	return &model.MetricSample{
		MetricType:        metricType,
		MetricName:        name,
		MetricValue:       value,
		SourceService:     "api-gateway",
		WarningThreshold:  70,
		CriticalThreshold: 90,
		ObservedAt:        time.Now().UTC().Add(-age),
	}
}

func TestQueryRejectsUnknownTimeframe(t *testing.T) {
	svc := NewMetricsService(&fakeMetricRepo{})
	_, err := svc.Query(context.Background(), "2d", "")
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestQueryDefaultsToOneHour(t *testing.T) {
	repo := &fakeMetricRepo{}
	svc := NewMetricsService(repo)

	report, err := svc.Query(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "1h", report.Timeframe)
	assert.WithinDuration(t, time.Now().UTC().Add(-time.Hour), repo.since, time.Second)
}

func TestQueryGroupsByTypeAndAnnotates(t *testing.T) {
	repo := &fakeMetricRepo{samples: []*model.MetricSample{
		storedSample("cpu_usage", "system", 95, time.Minute),
		storedSample("cpu_usage", "system", 75, 2*time.Minute),
		storedSample("request_rate", "traffic", 40, time.Minute),
	}}
	svc := NewMetricsService(repo)

	report, err := svc.Query(context.Background(), model.Timeframe1h, "")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	require.Len(t, report.ByType["system"], 2)
	require.Len(t, report.ByType["traffic"], 1)

	assert.True(t, report.ByType["system"][0].IsCritical)
	assert.True(t, report.ByType["system"][1].IsWarning)
	assert.False(t, report.ByType["system"][1].IsCritical)
	assert.False(t, report.ByType["traffic"][0].IsWarning)
}

func TestQueryLatestPicksNewestPerName(t *testing.T) {
	repo := &fakeMetricRepo{samples: []*model.MetricSample{
		storedSample("cpu_usage", "system", 75, 10*time.Minute),
		storedSample("cpu_usage", "system", 95, time.Minute),
	}}
	svc := NewMetricsService(repo)

	report, err := svc.Query(context.Background(), model.Timeframe1h, "")
	require.NoError(t, err)

	latest, ok := report.Latest["cpu_usage"]
	require.True(t, ok)
	assert.Equal(t, 95.0, latest.MetricValue)
}

func TestQueryFiltersByMetricType(t *testing.T) {
	repo := &fakeMetricRepo{samples: []*model.MetricSample{
		storedSample("cpu_usage", "system", 50, time.Minute),
		storedSample("request_rate", "traffic", 40, time.Minute),
	}}
	svc := NewMetricsService(repo)

	report, err := svc.Query(context.Background(), model.Timeframe1h, "traffic")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Total)
	assert.Empty(t, report.ByType["system"])
	assert.Len(t, report.ByType["traffic"], 1)
}

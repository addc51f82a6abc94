package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

type metricRepository struct {
	client *ScyllaClient
}

func NewMetricRepository(client *ScyllaClient) MetricRepository {
	return &metricRepository{client: client}
}

func (r *metricRepository) Save(ctx context.Context, sample *model.MetricSample) error {
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now().UTC()
	}

	query := r.client.Prepared.InsertSample.Bind(
		dayKey(sample.ObservedAt), sample.ObservedAt, uuid.New(),
		sample.MetricType, sample.MetricName, sample.MetricValue,
		sample.MetricUnit, sample.SourceService,
		sample.WarningThreshold, sample.CriticalThreshold).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to save metric sample",
			zap.String("metric_name", sample.MetricName),
			zap.String("source_service", sample.SourceService),
			zap.Error(err))
		return fmt.Errorf("failed to save metric sample: %w", err)
	}

	return nil
}

// ListSince returns samples observed at or after the cutoff, newest first.
// A timeframe can straddle midnight, so both affected day partitions are read.
func (r *metricRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*model.MetricSample, error) {
	if limit <= 0 {
		limit = 1000
	}

	since = since.UTC()
	days := []string{dayKey(time.Now().UTC())}
	if prev := dayKey(since); prev != days[0] {
		days = append(days, prev)
	}

	samples := make([]*model.MetricSample, 0, limit)
	for _, day := range days {
		if len(samples) >= limit {
			break
		}

		iter := r.client.Prepared.ListSamplesByDay.
			Bind(day, since, limit-len(samples)).
			WithContext(ctx).Iter()

		for {
			sample := &model.MetricSample{}
			ok := iter.Scan(&sample.ObservedAt, &sample.MetricType,
				&sample.MetricName, &sample.MetricValue, &sample.MetricUnit,
				&sample.SourceService, &sample.WarningThreshold,
				&sample.CriticalThreshold)
			if !ok {
				break
			}
			sample.ObservedAt = sample.ObservedAt.UTC()
			samples = append(samples, sample)
		}

		if err := iter.Close(); err != nil {
			util.Error("Failed to list metric samples", zap.String("day", day), zap.Error(err))
			return nil, fmt.Errorf("failed to list metric samples: %w", err)
		}
	}

	return samples, nil
}

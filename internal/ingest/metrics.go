package ingest

import (
	"context"
	"fmt"
	"time"

	"monitor-engine/internal/model"
	"monitor-engine/internal/repository/scylla"
)

// AnnotatedSample is a stored sample with its threshold verdicts attached,
// the shape the dashboard renders directly.
type AnnotatedSample struct {
	model.MetricSample
	IsWarning  bool `json:"is_warning"`
	IsCritical bool `json:"is_critical"`
}

// MetricsReport groups a timeframe's samples for the read API.
type MetricsReport struct {
	Timeframe string                       `json:"timeframe"`
	Total     int                          `json:"total"`
	ByType    map[string][]AnnotatedSample `json:"by_type"`
	Latest    map[string]AnnotatedSample   `json:"latest"`
}

// MetricsService is the read side of the sample store.
type MetricsService struct {
	repo scylla.MetricRepository
}

func NewMetricsService(repo scylla.MetricRepository) *MetricsService {
	return &MetricsService{repo: repo}
}

var validTimeframes = map[model.MetricTimeframe]bool{
	model.Timeframe5m: true, model.Timeframe15m: true, model.Timeframe1h: true,
	model.Timeframe6h: true, model.Timeframe24h: true,
}

// Query returns samples for the timeframe, grouped by metric type, plus a
// latest-per-name projection. An optional metric type narrows the result.
func (s *MetricsService) Query(ctx context.Context, timeframe model.MetricTimeframe, metricType string) (*MetricsReport, error) {
	if timeframe == "" {
		timeframe = model.Timeframe1h
	}
	if !validTimeframes[timeframe] {
		return nil, fmt.Errorf("%w: unknown timeframe %q", model.ErrInvalidFilter, timeframe)
	}

	since := time.Now().UTC().Add(-timeframe.Duration())
	samples, err := s.repo.ListSince(ctx, since, 5000)
	if err != nil {
		return nil, err
	}

	report := &MetricsReport{
		Timeframe: string(timeframe),
		ByType:    make(map[string][]AnnotatedSample),
		Latest:    make(map[string]AnnotatedSample),
	}

	for _, sample := range samples {
		if metricType != "" && sample.MetricType != metricType {
			continue
		}

		annotated := AnnotatedSample{
			MetricSample: *sample,
			IsWarning:    sample.IsWarning(),
			IsCritical:   sample.IsCritical(),
		}

		report.Total++
		report.ByType[sample.MetricType] = append(report.ByType[sample.MetricType], annotated)

		if latest, ok := report.Latest[sample.MetricName]; !ok || annotated.ObservedAt.After(latest.ObservedAt) {
			report.Latest[sample.MetricName] = annotated
		}
	}

	return report, nil
}

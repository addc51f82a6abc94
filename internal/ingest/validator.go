package ingest

import (
	"fmt"
	"math"
	"time"

	"monitor-engine/internal/model"
)

// Validator gatekeeps raw samples before they reach the evaluator. Rejection
// is never fatal to the stream: bad samples are dropped, counted and logged
// while ingestion continues.
type Validator struct {
	maxFutureSkew time.Duration
}

func NewValidator(maxFutureSkew time.Duration) *Validator {
	if maxFutureSkew <= 0 {
		maxFutureSkew = 5 * time.Minute
	}
	return &Validator{maxFutureSkew: maxFutureSkew}
}

// Validate checks one sample and normalizes its timestamp. A zero observed_at
// is stamped with the arrival time; a timestamp too far in the future is a
// producer clock bug and rejects the sample.
func (v *Validator) Validate(sample *model.MetricSample) error {
	if sample.MetricType == "" {
		return fmt.Errorf("%w: missing metric_type", model.ErrInvalidSample)
	}
	if sample.MetricName == "" {
		return fmt.Errorf("%w: missing metric_name", model.ErrInvalidSample)
	}
	if sample.SourceService == "" {
		return fmt.Errorf("%w: missing source_service", model.ErrInvalidSample)
	}
	if math.IsNaN(sample.MetricValue) || math.IsInf(sample.MetricValue, 0) {
		return fmt.Errorf("%w: metric_value is not finite", model.ErrInvalidSample)
	}

	now := time.Now().UTC()
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = now
		return nil
	}
	if sample.ObservedAt.After(now.Add(v.maxFutureSkew)) {
		return fmt.Errorf("%w: observed_at %s is too far in the future",
			model.ErrInvalidSample, sample.ObservedAt.Format(time.RFC3339))
	}

	return nil
}

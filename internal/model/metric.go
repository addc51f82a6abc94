package model

import (
	"time"
)

// MetricSample is a single observation reported by a producer service.
// Samples are immutable once ingested; the engine references them but the
// durable store owns retention.
type MetricSample struct {
	MetricType        string    `json:"metric_type" db:"metric_type"`
	MetricName        string    `json:"metric_name" db:"metric_name"`
	MetricValue       float64   `json:"metric_value" db:"metric_value"`
	MetricUnit        string    `json:"metric_unit,omitempty" db:"metric_unit"`
	SourceService     string    `json:"source_service" db:"source_service"`
	WarningThreshold  float64   `json:"threshold_warning" db:"threshold_warning"`
	CriticalThreshold float64   `json:"threshold_critical" db:"threshold_critical"`
	ObservedAt        time.Time `json:"observed_at" db:"observed_at"`
}

// Key identifies the alert-dedup scope for this sample.
func (s *MetricSample) Key() string {
	return s.MetricName + "/" + s.SourceService
}

// IsWarning reports whether the sample meets its warning threshold.
func (s *MetricSample) IsWarning() bool {
	return s.MetricValue >= s.WarningThreshold
}

// IsCritical reports whether the sample meets its critical threshold.
func (s *MetricSample) IsCritical() bool {
	return s.MetricValue >= s.CriticalThreshold
}

// MetricTimeframe is the query window for the metrics read API.
type MetricTimeframe string

const (
	Timeframe5m  MetricTimeframe = "5m"
	Timeframe15m MetricTimeframe = "15m"
	Timeframe1h  MetricTimeframe = "1h"
	Timeframe6h  MetricTimeframe = "6h"
	Timeframe24h MetricTimeframe = "24h"
)

// Duration converts the timeframe token to a window size. Unknown tokens
// fall back to one hour, matching the default the dashboard expects.
func (t MetricTimeframe) Duration() time.Duration {
	switch t {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe6h:
		return 6 * time.Hour
	case Timeframe24h:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels, ordered from least to most urgent. SeverityNormal is only
// produced by the threshold evaluator for non-breaching samples and never
// appears on a stored alert.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting (critical first). Unknown severities
// sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// AlertStatus is the alert state machine: active -> acknowledged -> resolved,
// with resolve reachable directly from active. Resolved is terminal.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is a threshold breach awaiting administrative attention. At most one
// open alert exists per (metric_name, source_service) pair; repeated breaches
// update the open alert in place.
type Alert struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	AlertType      string      `json:"alert_type" db:"alert_type"`
	Severity       Severity    `json:"severity" db:"severity"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description,omitempty" db:"description"`
	SourceService  string      `json:"source_service" db:"source_service"`
	MetricName     string      `json:"metric_name" db:"metric_name"`
	MetricValue    float64     `json:"metric_value" db:"metric_value"`
	ThresholdValue float64     `json:"threshold_value" db:"threshold_value"`
	Status         AlertStatus `json:"status" db:"status"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Key is the dedup key shared with MetricSample.Key.
func (a *Alert) Key() string {
	return a.MetricName + "/" + a.SourceService
}

// IsOpen reports whether the alert still counts against the dedup invariant.
func (a *Alert) IsOpen() bool {
	return a.Status == AlertActive || a.Status == AlertAcknowledged
}

// AlertStats summarizes a listing for the dashboard header cards.
type AlertStats struct {
	Total        int `json:"total"`
	Critical     int `json:"critical"`
	High         int `json:"high"`
	Medium       int `json:"medium"`
	Low          int `json:"low"`
	Active       int `json:"active"`
	Acknowledged int `json:"acknowledged"`
	Resolved     int `json:"resolved"`
}

// SummarizeAlerts computes listing statistics over a result set.
func SummarizeAlerts(alerts []*Alert) AlertStats {
	stats := AlertStats{Total: len(alerts)}
	for _, a := range alerts {
		switch a.Severity {
		case SeverityCritical:
			stats.Critical++
		case SeverityHigh:
			stats.High++
		case SeverityMedium:
			stats.Medium++
		case SeverityLow:
			stats.Low++
		}
		switch a.Status {
		case AlertActive:
			stats.Active++
		case AlertAcknowledged:
			stats.Acknowledged++
		case AlertResolved:
			stats.Resolved++
		}
	}
	return stats
}

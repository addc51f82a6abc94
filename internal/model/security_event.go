package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the security event state machine: active <-> resolved
// (resolve/reopen), active|resolved -> blocked via Block-IP, and hard delete
// from any state. Deleted events are physically removed, so there is no
// "deleted" status value.
type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventResolved EventStatus = "resolved"
	EventBlocked  EventStatus = "blocked"
)

// EventStatusFilter selects which events a listing returns. The zero value
// behaves like FilterActive, the dashboard default.
type EventStatusFilter string

const (
	FilterActive   EventStatusFilter = "active"
	FilterResolved EventStatusFilter = "resolved"
	FilterBlocked  EventStatusFilter = "blocked"
	FilterAll      EventStatusFilter = "all"
)

// Valid reports whether the filter token is one the API accepts.
func (f EventStatusFilter) Valid() bool {
	switch f {
	case FilterActive, FilterResolved, FilterBlocked, FilterAll, "":
		return true
	}
	return false
}

// EventData is the typed payload envelope for detector-specific context.
// The schema version lets downstream consumers pattern-match safely instead
// of poking at an untyped map.
type EventData struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// SecurityEvent is a detected security incident moving through triage.
type SecurityEvent struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	EventBucket     int         `json:"-" db:"event_bucket"`
	EventType       string      `json:"event_type" db:"event_type"`
	UserEmail       string      `json:"user_email,omitempty" db:"user_email"`
	IPAddress       string      `json:"ip_address" db:"ip_address"`
	ThreatLevel     int         `json:"threat_level" db:"threat_level"`
	Severity        Severity    `json:"severity" db:"severity"`
	Status          EventStatus `json:"status" db:"status"`
	EventData       EventData   `json:"event_data" db:"event_data"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      string      `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes string      `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ReopenedAt      *time.Time  `json:"reopened_at,omitempty" db:"reopened_at"`
	ReopenedBy      string      `json:"reopened_by,omitempty" db:"reopened_by"`
	ReopenReason    string      `json:"reopen_reason,omitempty" db:"reopen_reason"`
}

// ThreatCategory buckets a 0-10 threat level into the labels the dashboard
// renders.
func ThreatCategory(level int) string {
	switch {
	case level >= 9:
		return "Critical"
	case level >= 7:
		return "High"
	case level >= 5:
		return "Medium"
	case level >= 3:
		return "Low"
	default:
		return "Minimal"
	}
}

// SecurityEventSummary aggregates a listing for the dashboard header.
type SecurityEventSummary struct {
	Total           int     `json:"total"`
	ActiveThreats   int     `json:"active_threats"`
	CriticalThreats int     `json:"critical_threats"`
	AvgThreatLevel  float64 `json:"avg_threat_level"`
}

// SummarizeEvents computes listing summary statistics. Critical threats are
// those at threat level 8 or above.
func SummarizeEvents(events []*SecurityEvent) SecurityEventSummary {
	summary := SecurityEventSummary{Total: len(events)}
	levelSum := 0
	for _, e := range events {
		if e.Status == EventActive {
			summary.ActiveThreats++
		}
		if e.ThreatLevel >= 8 {
			summary.CriticalThreats++
		}
		levelSum += e.ThreatLevel
	}
	if len(events) > 0 {
		summary.AvgThreatLevel = float64(levelSum) / float64(len(events))
	}
	return summary
}

// IPBlockEntry records a blocked source address. Blocking is idempotent:
// re-blocking an address refreshes reason and timestamp instead of erroring.
type IPBlockEntry struct {
	IPAddress       string    `json:"ip_address" db:"ip_address"`
	Reason          string    `json:"block_reason" db:"block_reason"`
	BlockedBy       string    `json:"blocked_by" db:"blocked_by"`
	BlockedAt       time.Time `json:"blocked_at" db:"blocked_at"`
	SecurityEventID uuid.UUID `json:"security_event_id" db:"security_event_id"`
}

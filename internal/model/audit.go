package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit entry status values.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditLogEntry is an append-only record of an administrative action. Entries
// are never mutated after creation.
type AuditLogEntry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       string          `json:"user_id,omitempty" db:"user_id"`
	UserEmail    string          `json:"user_email,omitempty" db:"user_email"`
	UserName     string          `json:"user_name,omitempty" db:"user_name"`
	UserRole     string          `json:"user_role,omitempty" db:"user_role"`
	ActionType   string          `json:"action_type" db:"action_type"`
	ResourceType string          `json:"resource_type" db:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	ResourceName string          `json:"resource_name,omitempty" db:"resource_name"`
	OldValues    json.RawMessage `json:"old_values,omitempty" db:"old_values"`
	NewValues    json.RawMessage `json:"new_values,omitempty" db:"new_values"`
	Severity     string          `json:"severity" db:"severity"`
	Status       string          `json:"status" db:"status"`
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Action types that raise the per-entry risk score.
var riskyActionTypes = map[string]bool{
	"user_delete":            true,
	"security_event_delete":  true,
	"system_settings_change": true,
	"privilege_escalation":   true,
	"ip_block":               true,
}

// RiskScore rates a single entry from 1 to 10: a severity base, plus penalties
// for failure and for inherently risky action types.
func (e *AuditLogEntry) RiskScore() int {
	score := 1
	switch e.Severity {
	case "critical":
		score = 10
	case "high":
		score = 7
	case "medium":
		score = 5
	case "low":
		score = 2
	case "info":
		score = 1
	}
	if e.Status == AuditStatusFailed {
		score += 3
	}
	if riskyActionTypes[e.ActionType] {
		score += 2
	}
	if score > 10 {
		score = 10
	}
	return score
}

package model

import (
	"fmt"
	"time"
)

// AuditFilter composes the conjunctive predicates of an audit query. Zero
// values mean "no predicate".
type AuditFilter struct {
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	ActionType   string     `json:"action_type,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	Severity     string     `json:"severity,omitempty"`
	Status       string     `json:"status,omitempty"`
	Search       string     `json:"search,omitempty"`
	Page         int        `json:"page,omitempty"`
	PageSize     int        `json:"page_size,omitempty"`
}

var auditSeverities = map[string]bool{
	"critical": true, "high": true, "medium": true, "low": true, "info": true,
}

// Normalize validates the filter and applies paging defaults. Malformed input
// is the only error the audit read path produces.
func (f *AuditFilter) Normalize() error {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.PageSize > 500 {
		return fmt.Errorf("%w: page_size above 500", ErrInvalidFilter)
	}
	if f.Severity != "" && !auditSeverities[f.Severity] {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidFilter, f.Severity)
	}
	if f.Status != "" && f.Status != AuditStatusSuccess && f.Status != AuditStatusFailed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidFilter)
	}
	return nil
}

// AuditQueryResult is one page of audit entries plus paging metadata.
type AuditQueryResult struct {
	Entries   []*AuditLogEntry `json:"entries"`
	Total     uint64           `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	PageCount int              `json:"page_count"`
}

// AuditUserActivity is one row of the top-users aggregation.
type AuditUserActivity struct {
	UserEmail string `json:"user_email"`
	Count     uint64 `json:"count"`
}

// AuditActionActivity is one row of the top-actions aggregation.
type AuditActionActivity struct {
	ActionType string `json:"action_type"`
	Count      uint64 `json:"count"`
}

// AuditDailyBucket is one day of activity for the stats time series.
type AuditDailyBucket struct {
	Day   string `json:"day"`
	Count uint64 `json:"count"`
}

// AuditStats is the aggregate view over a stats timeframe.
type AuditStats struct {
	Total          uint64                `json:"total"`
	BySeverity     map[string]uint64     `json:"by_severity"`
	ByActionType   map[string]uint64     `json:"by_action_type"`
	ByStatus       map[string]uint64     `json:"by_status"`
	TopUsers       []AuditUserActivity   `json:"top_users"`
	TopActions     []AuditActionActivity `json:"top_actions"`
	DailyActivity  []AuditDailyBucket    `json:"daily_activity"`
	CriticalEvents uint64                `json:"critical_events"`
	FailedEvents   uint64                `json:"failed_events"`
	SuccessRate    float64               `json:"success_rate"`
	CriticalRate   float64               `json:"critical_rate"`
	RiskScore      int                   `json:"risk_score"`
}

// SystemRiskScore rates overall audit health from 0 to 10 based on failure
// rate, critical rate and recent security-event activity.
func SystemRiskScore(total, failed, critical, securityEvents uint64) int {
	score := 0
	if total > 0 {
		failureRate := float64(failed) / float64(total)
		criticalRate := float64(critical) / float64(total)

		switch {
		case failureRate > 0.1:
			score += 3
		case failureRate > 0.05:
			score += 2
		}
		switch {
		case criticalRate > 0.05:
			score += 4
		case criticalRate > 0.02:
			score += 2
		}
	}
	switch {
	case securityEvents > 5:
		score += 5
	case securityEvents > 0:
		score += 2
	}
	if score > 10 {
		score = 10
	}
	return score
}

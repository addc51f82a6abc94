package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/client"
	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

// AuditRepository is the append-only store behind the audit query engine.
type AuditRepository interface {
	Insert(ctx context.Context, entry *model.AuditLogEntry) error
	InsertBatch(ctx context.Context, entries []*model.AuditLogEntry) error
	Query(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLogEntry, uint64, error)
	CountSince(ctx context.Context, since time.Time) (total, failed, critical uint64, err error)
	CountBySeverity(ctx context.Context, since time.Time) (map[string]uint64, error)
	CountByActionType(ctx context.Context, since time.Time) (map[string]uint64, error)
	CountByStatus(ctx context.Context, since time.Time) (map[string]uint64, error)
	TopUsers(ctx context.Context, since time.Time, limit int) ([]model.AuditUserActivity, error)
	TopActions(ctx context.Context, since time.Time, limit int) ([]model.AuditActionActivity, error)
	DailyActivity(ctx context.Context, since time.Time) ([]model.AuditDailyBucket, error)
	CountSecurityEventActions(ctx context.Context, since time.Time) (uint64, error)
}

type auditRepository struct {
	client *client.ClickHouseClient
}

func NewAuditRepository(ch *client.ClickHouseClient) AuditRepository {
	return &auditRepository{client: ch}
}

const insertAuditQuery = `
	INSERT INTO audit_trail (
		id, user_id, user_email, user_name, user_role, action_type,
		resource_type, resource_id, resource_name, old_values, new_values,
		severity, status, ip_address, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *auditRepository) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.client.Exec(ctx, insertAuditQuery,
		entry.ID.String(), entry.UserID, entry.UserEmail, entry.UserName,
		entry.UserRole, entry.ActionType, entry.ResourceType, entry.ResourceID,
		entry.ResourceName, string(entry.OldValues), string(entry.NewValues),
		entry.Severity, entry.Status, entry.IPAddress, string(entry.Metadata),
		entry.CreatedAt)
	if err != nil {
		util.Error("Failed to insert audit entry",
			zap.String("action_type", entry.ActionType),
			zap.Error(err))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) InsertBatch(ctx context.Context, entries []*model.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		rows = append(rows, []interface{}{
			entry.ID.String(), entry.UserID, entry.UserEmail, entry.UserName,
			entry.UserRole, entry.ActionType, entry.ResourceType,
			entry.ResourceID, entry.ResourceName, string(entry.OldValues),
			string(entry.NewValues), entry.Severity, entry.Status,
			entry.IPAddress, string(entry.Metadata), entry.CreatedAt,
		})
	}

	if err := r.client.BatchInsert(ctx, insertAuditQuery, rows); err != nil {
		return fmt.Errorf("failed to batch insert audit entries: %w", err)
	}

	return nil
}

// buildPredicates converts a normalized filter into a WHERE clause.
func buildPredicates(filter *model.AuditFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.StartDate != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ActionType != "" {
		clauses = append(clauses, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.ResourceType != "" {
		clauses = append(clauses, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		clauses = append(clauses,
			`(positionCaseInsensitive(user_email, ?) > 0
			OR positionCaseInsensitive(user_name, ?) > 0
			OR positionCaseInsensitive(action_type, ?) > 0
			OR positionCaseInsensitive(resource_type, ?) > 0
			OR positionCaseInsensitive(resource_name, ?) > 0)`)
		for i := 0; i < 5; i++ {
			args = append(args, filter.Search)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *auditRepository) Query(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLogEntry, uint64, error) {
	where, args := buildPredicates(filter)

	var total uint64
	countQuery := "SELECT count() FROM audit_trail" + where
	if err := r.client.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	selectQuery := `
		SELECT id, user_id, user_email, user_name, user_role, action_type,
			resource_type, resource_id, resource_name, old_values, new_values,
			severity, status, ip_address, metadata, created_at
		FROM audit_trail` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, filter.PageSize, offset)

	rows, err := r.client.QueryRows(ctx, selectQuery, args...)
	if err != nil {
		util.Error("Failed to query audit entries", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		entry := &model.AuditLogEntry{}
		var id, oldValues, newValues, metadata string

		err := rows.Scan(&id, &entry.UserID, &entry.UserEmail, &entry.UserName,
			&entry.UserRole, &entry.ActionType, &entry.ResourceType,
			&entry.ResourceID, &entry.ResourceName, &oldValues, &newValues,
			&entry.Severity, &entry.Status, &entry.IPAddress, &metadata,
			&entry.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.ID, _ = uuid.Parse(id)
		if oldValues != "" {
			entry.OldValues = []byte(oldValues)
		}
		if newValues != "" {
			entry.NewValues = []byte(newValues)
		}
		if metadata != "" {
			entry.Metadata = []byte(metadata)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}

func (r *auditRepository) CountSince(ctx context.Context, since time.Time) (uint64, uint64, uint64, error) {
	var total, failed, critical uint64
	err := r.client.QueryRow(ctx, `
		SELECT count(),
			countIf(status = 'failed'),
			countIf(severity = 'critical')
		FROM audit_trail WHERE created_at >= ?`, since.UTC()).
		Scan(&total, &failed, &critical)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return total, failed, critical, nil
}

func (r *auditRepository) groupCount(ctx context.Context, column string, since time.Time) (map[string]uint64, error) {
	query := fmt.Sprintf(`
		SELECT %s, count() FROM audit_trail
		WHERE created_at >= ? GROUP BY %s`, column, column)

	rows, err := r.client.QueryRows(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit entries by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var key string
		var count uint64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (r *auditRepository) CountBySeverity(ctx context.Context, since time.Time) (map[string]uint64, error) {
	return r.groupCount(ctx, "severity", since)
}

func (r *auditRepository) CountByActionType(ctx context.Context, since time.Time) (map[string]uint64, error) {
	return r.groupCount(ctx, "action_type", since)
}

func (r *auditRepository) CountByStatus(ctx context.Context, since time.Time) (map[string]uint64, error) {
	return r.groupCount(ctx, "status", since)
}

func (r *auditRepository) TopUsers(ctx context.Context, since time.Time, limit int) ([]model.AuditUserActivity, error) {
	rows, err := r.client.QueryRows(ctx, `
		SELECT user_email, count() AS c FROM audit_trail
		WHERE created_at >= ? AND user_email != ''
		GROUP BY user_email ORDER BY c DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top users: %w", err)
	}
	defer rows.Close()

	var users []model.AuditUserActivity
	for rows.Next() {
		var u model.AuditUserActivity
		if err := rows.Scan(&u.UserEmail, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *auditRepository) TopActions(ctx context.Context, since time.Time, limit int) ([]model.AuditActionActivity, error) {
	rows, err := r.client.QueryRows(ctx, `
		SELECT action_type, count() AS c FROM audit_trail
		WHERE created_at >= ?
		GROUP BY action_type ORDER BY c DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top actions: %w", err)
	}
	defer rows.Close()

	var actions []model.AuditActionActivity
	for rows.Next() {
		var a model.AuditActionActivity
		if err := rows.Scan(&a.ActionType, &a.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top action row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (r *auditRepository) DailyActivity(ctx context.Context, since time.Time) ([]model.AuditDailyBucket, error) {
	rows, err := r.client.QueryRows(ctx, `
		SELECT toString(toDate(created_at)) AS day, count() FROM audit_trail
		WHERE created_at >= ?
		GROUP BY day ORDER BY day`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily activity: %w", err)
	}
	defer rows.Close()

	var buckets []model.AuditDailyBucket
	for rows.Next() {
		var b model.AuditDailyBucket
		if err := rows.Scan(&b.Day, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CountSecurityEventActions counts audit entries touching security events,
// which feeds the system risk score.
func (r *auditRepository) CountSecurityEventActions(ctx context.Context, since time.Time) (uint64, error) {
	var count uint64
	err := r.client.QueryRow(ctx, `
		SELECT count() FROM audit_trail
		WHERE created_at >= ? AND resource_type = 'security_event'`, since.UTC()).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security event actions: %w", err)
	}
	return count, nil
}

package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"monitor-engine/internal/config"
	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

// Samples older than two days fall outside every read timeframe.
const sampleTTLSeconds = 172800

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	// alerts
	InsertAlert        *gocql.Query
	InsertAlertByDay   *gocql.Query
	GetAlertByID       *gocql.Query
	UpdateAlert        *gocql.Query
	UpdateAlertByDay   *gocql.Query
	ListAlertsByDay    *gocql.Query
	GetOpenAlertKey    *gocql.Query
	SetOpenAlertKey    *gocql.Query
	DeleteOpenAlertKey *gocql.Query

	// security events
	InsertEvent      *gocql.Query
	InsertEventByDay *gocql.Query
	GetEventByID     *gocql.Query
	UpdateEvent      *gocql.Query
	UpdateEventByDay *gocql.Query
	DeleteEvent      *gocql.Query
	DeleteEventByDay *gocql.Query
	ListEventsByDay  *gocql.Query

	// blocklist
	UpsertBlockedIP *gocql.Query
	GetBlockedIP    *gocql.Query
	ListBlockedIPs  *gocql.Query

	// metric samples
	InsertSample     *gocql.Query
	ListSamplesByDay *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertAlert = s.Session.Query(`
        INSERT INTO alerts_by_id (
            id, alert_type, severity, title, description, source_service,
            metric_name, metric_value, threshold_value, status,
            acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertAlertByDay = s.Session.Query(`
        INSERT INTO alerts_by_day (
            day, created_at, id, alert_type, severity, title, description,
            source_service, metric_name, metric_value, threshold_value, status,
            acknowledged_by, acknowledged_at, resolved_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetAlertByID = s.Session.Query(`
        SELECT id, alert_type, severity, title, description, source_service,
            metric_name, metric_value, threshold_value, status,
            acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at
        FROM alerts_by_id WHERE id = ?`)

	prepared.UpdateAlert = s.Session.Query(`
        UPDATE alerts_by_id SET severity = ?, title = ?, description = ?,
            metric_value = ?, threshold_value = ?, status = ?,
            acknowledged_by = ?, acknowledged_at = ?, resolved_at = ?, updated_at = ?
        WHERE id = ?`)

	prepared.UpdateAlertByDay = s.Session.Query(`
        UPDATE alerts_by_day SET severity = ?, title = ?, description = ?,
            metric_value = ?, threshold_value = ?, status = ?,
            acknowledged_by = ?, acknowledged_at = ?, resolved_at = ?, updated_at = ?
        WHERE day = ? AND created_at = ? AND id = ?`)

	prepared.ListAlertsByDay = s.Session.Query(`
        SELECT id, alert_type, severity, title, description, source_service,
            metric_name, metric_value, threshold_value, status,
            acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at
        FROM alerts_by_day WHERE day = ? LIMIT ?`)

	prepared.GetOpenAlertKey = s.Session.Query(`
        SELECT alert_id FROM open_alerts WHERE alert_key = ?`)

	prepared.SetOpenAlertKey = s.Session.Query(`
        INSERT INTO open_alerts (alert_key, alert_id) VALUES (?, ?)`)

	prepared.DeleteOpenAlertKey = s.Session.Query(`
        DELETE FROM open_alerts WHERE alert_key = ?`)

	prepared.InsertEvent = s.Session.Query(`
        INSERT INTO security_events_by_id (
            id, event_bucket, event_type, user_email, ip_address, threat_level,
            severity, status, event_data, created_at, resolved_at, resolved_by,
            resolution_notes, reopened_at, reopened_by, reopen_reason
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertEventByDay = s.Session.Query(`
        INSERT INTO security_events_by_day (
            day, created_at, id, event_bucket, event_type, user_email,
            ip_address, threat_level, severity, status, event_data,
            resolved_at, resolved_by, resolution_notes,
            reopened_at, reopened_by, reopen_reason
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetEventByID = s.Session.Query(`
        SELECT id, event_bucket, event_type, user_email, ip_address, threat_level,
            severity, status, event_data, created_at, resolved_at, resolved_by,
            resolution_notes, reopened_at, reopened_by, reopen_reason
        FROM security_events_by_id WHERE id = ?`)

	prepared.UpdateEvent = s.Session.Query(`
        UPDATE security_events_by_id SET status = ?, resolved_at = ?, resolved_by = ?,
            resolution_notes = ?, reopened_at = ?, reopened_by = ?, reopen_reason = ?
        WHERE id = ?`)

	prepared.UpdateEventByDay = s.Session.Query(`
        UPDATE security_events_by_day SET status = ?, resolved_at = ?, resolved_by = ?,
            resolution_notes = ?, reopened_at = ?, reopened_by = ?, reopen_reason = ?
        WHERE day = ? AND created_at = ? AND id = ?`)

	prepared.DeleteEvent = s.Session.Query(`
        DELETE FROM security_events_by_id WHERE id = ?`)

	prepared.DeleteEventByDay = s.Session.Query(`
        DELETE FROM security_events_by_day WHERE day = ? AND created_at = ? AND id = ?`)

	prepared.ListEventsByDay = s.Session.Query(`
        SELECT id, event_bucket, event_type, user_email, ip_address, threat_level,
            severity, status, event_data, created_at, resolved_at, resolved_by,
            resolution_notes, reopened_at, reopened_by, reopen_reason
        FROM security_events_by_day WHERE day = ? LIMIT ?`)

	prepared.UpsertBlockedIP = s.Session.Query(`
        INSERT INTO blocked_ips (ip_address, block_reason, blocked_by, blocked_at, security_event_id)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.GetBlockedIP = s.Session.Query(`
        SELECT ip_address, block_reason, blocked_by, blocked_at, security_event_id
        FROM blocked_ips WHERE ip_address = ?`)

	prepared.ListBlockedIPs = s.Session.Query(`
        SELECT ip_address, block_reason, blocked_by, blocked_at, security_event_id
        FROM blocked_ips`)

	prepared.InsertSample = s.Session.Query(fmt.Sprintf(`
        INSERT INTO metric_samples_by_day (
            day, observed_at, id, metric_type, metric_name, metric_value,
            metric_unit, source_service, threshold_warning, threshold_critical
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) USING TTL %d`, sampleTTLSeconds))

	prepared.ListSamplesByDay = s.Session.Query(`
        SELECT observed_at, metric_type, metric_name, metric_value, metric_unit,
            source_service, threshold_warning, threshold_critical
        FROM metric_samples_by_day WHERE day = ? AND observed_at >= ? LIMIT ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("Selected ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, lastErr)
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		err := query.Scan(dest...)
		if err == nil {
			return nil
		}
		// A miss is an answer, not a transport failure.
		if err == gocql.ErrNotFound {
			return err
		}
		lastErr = err
		if i < 2 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, lastErr)
}

// dayKey is the partition key for day-partitioned tables.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// recentDays returns partition keys for today back through n-1 days ago,
// newest first.
func recentDays(n int) []string {
	days := make([]string, 0, n)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		days = append(days, dayKey(now.AddDate(0, 0, -i)))
	}
	return days
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"monitor-engine/internal/client"
	"monitor-engine/internal/model"
	"monitor-engine/internal/repository/clickhouse"
	"monitor-engine/internal/repository/redis"
	"monitor-engine/internal/util"
)

// Recorder appends entries to the audit trail. Mutating services depend on
// this rather than the full query engine.
type Recorder interface {
	Record(ctx context.Context, entry *model.AuditLogEntry) error
}

// Service is the audit query engine: a pure read path over the append-only
// trail, plus the append hook every administrative mutation goes through.
type Service struct {
	repo    clickhouse.AuditRepository
	es      *client.ESClient
	esIndex string
	cache   *redis.StatsCache
}

func NewService(repo clickhouse.AuditRepository, es *client.ESClient, esIndex string, cache *redis.StatsCache) *Service {
	return &Service{
		repo:    repo,
		es:      es,
		esIndex: esIndex,
		cache:   cache,
	}
}

// Record appends an entry to ClickHouse and mirrors it into Elasticsearch so
// the free-text search branch stays current. The mirror is best effort.
func (s *Service) Record(ctx context.Context, entry *model.AuditLogEntry) error {
	if s.repo == nil {
		return fmt.Errorf("%w: audit store not initialized", model.ErrStoreUnavailable)
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}

	if s.es != nil {
		res, err := s.es.IndexDocument(ctx, s.esIndex, entry.ID.String(), entry)
		if err != nil {
			util.Warn("Failed to mirror audit entry to Elasticsearch",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err))
		} else {
			res.Body.Close()
		}
	}

	return nil
}

// Query runs a filtered, paginated read. Free-text searches go through
// Elasticsearch when available; everything else hits ClickHouse directly.
// An empty result set is a success, not an error.
func (s *Service) Query(ctx context.Context, filter *model.AuditFilter) (*model.AuditQueryResult, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: audit store not initialized", model.ErrStoreUnavailable)
	}

	if err := filter.Normalize(); err != nil {
		return nil, err
	}

	if filter.Search != "" {
		filter.Search = util.SanitizeInput(filter.Search)
		if util.ContainsSuspicious(filter.Search) {
			return nil, fmt.Errorf("%w: search contains disallowed characters", model.ErrInvalidFilter)
		}
	}

	var (
		entries []*model.AuditLogEntry
		total   uint64
		err     error
	)

	if filter.Search != "" && s.es != nil {
		entries, total, err = s.searchES(ctx, filter)
	} else {
		entries, total, err = s.repo.Query(ctx, filter)
	}
	if err != nil {
		return nil, err
	}

	pageCount := int((total + uint64(filter.PageSize) - 1) / uint64(filter.PageSize))
	return &model.AuditQueryResult{
		Entries:   entries,
		Total:     total,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
		PageCount: pageCount,
	}, nil
}

// searchES serves the free-text branch, combining the structured predicates
// with a multi-field match.
func (s *Service) searchES(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLogEntry, uint64, error) {
	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":  filter.Search,
				"fields": []string{"user_email", "user_name", "action_type", "resource_type", "resource_name"},
			},
		},
	}

	addTerm := func(field, value string) {
		if value != "" {
			must = append(must, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	addTerm("user_id", filter.UserID)
	addTerm("action_type", filter.ActionType)
	addTerm("resource_type", filter.ResourceType)
	addTerm("severity", filter.Severity)
	addTerm("status", filter.Status)

	if filter.StartDate != nil || filter.EndDate != nil {
		dateRange := map[string]interface{}{}
		if filter.StartDate != nil {
			dateRange["gte"] = filter.StartDate.UTC().Format(time.RFC3339)
		}
		if filter.EndDate != nil {
			dateRange["lte"] = filter.EndDate.UTC().Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"created_at": dateRange},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"from": (filter.Page - 1) * filter.PageSize,
		"size": filter.PageSize,
	}

	res, err := s.es.Search(ctx, s.esIndex, query)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("audit search failed: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value uint64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source model.AuditLogEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	entries := make([]*model.AuditLogEntry, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		entry := parsed.Hits.Hits[i].Source
		entries = append(entries, &entry)
	}

	return entries, parsed.Hits.Total.Value, nil
}

// sinceForTimeframe converts a stats timeframe token to a cutoff. Unknown
// tokens fall back to the 7d default rather than failing the request.
func sinceForTimeframe(timeframe string) time.Time {
	now := time.Now().UTC()
	switch timeframe {
	case "24h":
		return now.Add(-24 * time.Hour)
	case "30d":
		return now.AddDate(0, 0, -30)
	case "90d":
		return now.AddDate(0, 0, -90)
	default:
		return now.AddDate(0, 0, -7)
	}
}

// Stats recomputes the aggregate view for a timeframe, fanning the
// aggregation queries out concurrently. Results are cached with a short TTL
// because the dashboard polls this endpoint.
func (s *Service) Stats(ctx context.Context, timeframe string) (*model.AuditStats, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: audit store not initialized", model.ErrStoreUnavailable)
	}

	since := sinceForTimeframe(timeframe)

	cacheKey := "audit_stats:" + timeframe
	if s.cache != nil {
		cached := &model.AuditStats{}
		if s.cache.Get(cacheKey, cached) {
			return cached, nil
		}
	}

	stats := &model.AuditStats{}
	var securityEvents uint64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.Total, stats.FailedEvents, stats.CriticalEvents, err = s.repo.CountSince(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		stats.BySeverity, err = s.repo.CountBySeverity(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ByActionType, err = s.repo.CountByActionType(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ByStatus, err = s.repo.CountByStatus(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TopUsers, err = s.repo.TopUsers(gctx, since, 10)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TopActions, err = s.repo.TopActions(gctx, since, 10)
		return err
	})
	g.Go(func() error {
		var err error
		stats.DailyActivity, err = s.repo.DailyActivity(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		securityEvents, err = s.repo.CountSecurityEventActions(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Total-stats.FailedEvents) / float64(stats.Total)
		stats.CriticalRate = float64(stats.CriticalEvents) / float64(stats.Total)
	}
	stats.RiskScore = model.SystemRiskScore(stats.Total, stats.FailedEvents, stats.CriticalEvents, securityEvents)

	if s.cache != nil {
		s.cache.Set(cacheKey, stats)
	}

	return stats, nil
}

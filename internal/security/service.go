package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/audit"
	"monitor-engine/internal/bucketing"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/model"
	"monitor-engine/internal/repository/redis"
	"monitor-engine/internal/repository/scylla"
	"monitor-engine/internal/util"
)

const defaultResolutionNotes = "Resolved by administrator"

// EventListFilter narrows a security event listing.
type EventListFilter struct {
	Status    model.EventStatusFilter
	MinThreat int
	Limit     int
}

func (f *EventListFilter) validate() error {
	if !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidFilter, f.Status)
	}
	if f.Status == "" {
		f.Status = model.FilterActive
	}
	if f.MinThreat < 0 || f.MinThreat > 10 {
		return fmt.Errorf("%w: threat level out of range", model.ErrInvalidFilter)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return nil
}

// EventService owns the security event state machine: active <-> resolved,
// block from any non-deleted state, hard delete. Mutations on the same event
// are serialized through striped mutexes.
type EventService struct {
	events     scylla.EventRepository
	blocklist  scylla.BlocklistRepository
	blockCache *redis.BlocklistCache
	recorder   audit.Recorder
	hub        *hub.Hub
	buckets    *bucketing.Manager

	stripes []sync.Mutex
}

func NewEventService(events scylla.EventRepository, blocklist scylla.BlocklistRepository,
	blockCache *redis.BlocklistCache, recorder audit.Recorder,
	h *hub.Hub, buckets *bucketing.Manager) *EventService {
	return &EventService{
		events:     events,
		blocklist:  blocklist,
		blockCache: blockCache,
		recorder:   recorder,
		hub:        h,
		buckets:    buckets,
		stripes:    make([]sync.Mutex, buckets.LockStripes()),
	}
}

func (s *EventService) lockEvent(id uuid.UUID) func() {
	stripe := &s.stripes[s.buckets.LockStripe(id.String())]
	stripe.Lock()
	return stripe.Unlock
}

// Report records a freshly detected security event and pushes it to live
// sessions. Severity defaults from the threat level when the detector omits
// it.
func (s *EventService) Report(ctx context.Context, event *model.SecurityEvent) (*model.SecurityEvent, error) {
	if event.EventType == "" || event.IPAddress == "" {
		return nil, fmt.Errorf("%w: event_type and ip_address are required", model.ErrInvalidFilter)
	}
	if event.ThreatLevel < 0 || event.ThreatLevel > 10 {
		return nil, fmt.Errorf("%w: threat level out of range", model.ErrInvalidFilter)
	}

	event.ID = uuid.New()
	event.Status = model.EventActive
	event.CreatedAt = time.Now().UTC()
	event.EventBucket = s.buckets.EventBucket(event.ID.String())
	if event.Severity == "" {
		event.Severity = severityForThreat(event.ThreatLevel)
	}

	if err := s.events.Save(ctx, event); err != nil {
		return nil, err
	}

	util.Info("Security event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("threat_level", event.ThreatLevel))

	s.publish(event)
	return event, nil
}

// Resolve closes an active event. Resolving an already resolved event is an
// idempotent success; a blocked event rejects the transition. Empty notes and
// resolver fall back to dashboard defaults.
func (s *EventService) Resolve(ctx context.Context, id uuid.UUID, notes, resolvedBy string) (*model.SecurityEvent, error) {
	unlock := s.lockEvent(id)
	defer unlock()

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch event.Status {
	case model.EventResolved:
		return event, nil
	case model.EventBlocked:
		return nil, fmt.Errorf("%w: cannot resolve blocked event %s", model.ErrInvalidTransition, id)
	}

	if notes == "" {
		notes = defaultResolutionNotes
	}

	now := time.Now().UTC()
	event.Status = model.EventResolved
	event.ResolvedAt = &now
	event.ResolvedBy = resolvedBy
	event.ResolutionNotes = notes

	if err := s.events.Update(ctx, event); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, resolvedBy, "security_event_resolve", event, "low", map[string]interface{}{
		"resolution_notes": notes,
	})
	s.publish(event)
	return event, nil
}

// Reopen returns a resolved event to active and clears its resolution fields,
// keeping the reopen bookkeeping for the audit view.
func (s *EventService) Reopen(ctx context.Context, id uuid.UUID, reason, actor string) (*model.SecurityEvent, error) {
	unlock := s.lockEvent(id)
	defer unlock()

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if event.Status != model.EventResolved {
		return nil, fmt.Errorf("%w: cannot reopen %s event %s", model.ErrInvalidTransition, event.Status, id)
	}

	now := time.Now().UTC()
	event.Status = model.EventActive
	event.ResolvedAt = nil
	event.ResolvedBy = ""
	event.ResolutionNotes = ""
	event.ReopenedAt = &now
	event.ReopenedBy = actor
	event.ReopenReason = reason

	if err := s.events.Update(ctx, event); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "security_event_reopen", event, "medium", map[string]interface{}{
		"reopen_reason": reason,
	})
	s.publish(event)
	return event, nil
}

// BlockSource writes the blocklist entry first, then projects the event to
// blocked. The blocklist write is the side effect of record; if the state
// write fails, retrying the block is safe because both steps are idempotent.
func (s *EventService) BlockSource(ctx context.Context, id uuid.UUID, ipAddress, reason, actor string) (*model.SecurityEvent, error) {
	unlock := s.lockEvent(id)
	defer unlock()

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ipAddress == "" {
		ipAddress = event.IPAddress
	}
	if reason == "" {
		reason = fmt.Sprintf("Blocked due to security event: %s", event.EventType)
	}

	entry := &model.IPBlockEntry{
		IPAddress:       ipAddress,
		Reason:          reason,
		BlockedBy:       actor,
		BlockedAt:       time.Now().UTC(),
		SecurityEventID: event.ID,
	}

	if err := s.blocklist.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	if s.blockCache != nil {
		if err := s.blockCache.SetBlocked(ipAddress, reason); err != nil {
			util.Warn("Blocklist cache update failed", zap.String("ip_address", ipAddress), zap.Error(err))
		}
	}

	if event.Status != model.EventBlocked {
		event.Status = model.EventBlocked
		if err := s.events.Update(ctx, event); err != nil {
			return nil, err
		}
	}

	s.recordAudit(ctx, actor, "ip_block", event, "high", map[string]interface{}{
		"ip_address":   ipAddress,
		"block_reason": reason,
	})
	s.publish(event)
	return event, nil
}

// Delete hard-deletes an event. Irreversible, and itself a security-relevant
// action, so it always lands in the audit trail.
func (s *EventService) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	unlock := s.lockEvent(id)
	defer unlock()

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.events.Delete(ctx, event); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "security_event_delete", event, "high", map[string]interface{}{
		"event_type":   event.EventType,
		"threat_level": event.ThreatLevel,
		"status":       event.Status,
	})

	util.Info("Security event deleted",
		zap.String("event_id", id.String()),
		zap.String("actor", actor))
	return nil
}

// Get returns a single event by id.
func (s *EventService) Get(ctx context.Context, id uuid.UUID) (*model.SecurityEvent, error) {
	return s.events.GetByID(ctx, id)
}

// List returns recent events matching the filter, ordered by threat level
// then recency, with summary statistics.
func (s *EventService) List(ctx context.Context, filter EventListFilter) ([]*model.SecurityEvent, model.SecurityEventSummary, error) {
	if err := filter.validate(); err != nil {
		return nil, model.SecurityEventSummary{}, err
	}

	events, err := s.events.List(ctx, 7, filter.Limit)
	if err != nil {
		return nil, model.SecurityEventSummary{}, err
	}

	filtered := events[:0]
	for _, e := range events {
		if filter.Status != model.FilterAll && string(e.Status) != string(filter.Status) {
			continue
		}
		if e.ThreatLevel < filter.MinThreat {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].ThreatLevel != filtered[j].ThreatLevel {
			return filtered[i].ThreatLevel > filtered[j].ThreatLevel
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered, model.SummarizeEvents(filtered), nil
}

// ListBlockedIPs returns the current blocklist.
func (s *EventService) ListBlockedIPs(ctx context.Context) ([]*model.IPBlockEntry, error) {
	return s.blocklist.List(ctx)
}

// IsBlocked answers the hot-path lookup, consulting the cache before the
// durable blocklist.
func (s *EventService) IsBlocked(ctx context.Context, ipAddress string) (bool, error) {
	if s.blockCache != nil {
		if blocked, err := s.blockCache.IsBlocked(ipAddress); err == nil && blocked {
			return true, nil
		}
	}

	entry, err := s.blocklist.Get(ctx, ipAddress)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if s.blockCache != nil {
		_ = s.blockCache.SetBlocked(entry.IPAddress, entry.Reason)
	}
	return true, nil
}

func (s *EventService) publish(event *model.SecurityEvent) {
	s.hub.Publish(model.StreamMessage{
		Type:  model.StreamSecurityEvent,
		Event: event,
	})
}

func (s *EventService) recordAudit(ctx context.Context, actor, actionType string, event *model.SecurityEvent, severity string, details map[string]interface{}) {
	if s.recorder == nil {
		return
	}

	metadata, _ := json.Marshal(details)
	entry := &model.AuditLogEntry{
		UserEmail:    actor,
		ActionType:   actionType,
		ResourceType: "security_event",
		ResourceID:   event.ID.String(),
		ResourceName: event.EventType,
		Severity:     severity,
		Status:       model.AuditStatusSuccess,
		IPAddress:    event.IPAddress,
		Metadata:     metadata,
	}

	if err := s.recorder.Record(ctx, entry); err != nil {
		util.Error("Failed to record audit entry",
			zap.String("action_type", actionType),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
	}
}

// severityForThreat maps a 0-10 threat level onto alerting severities.
func severityForThreat(level int) model.Severity {
	switch {
	case level >= 9:
		return model.SeverityCritical
	case level >= 7:
		return model.SeverityHigh
	case level >= 5:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

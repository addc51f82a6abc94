package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/bucketing"
	"monitor-engine/internal/config"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/model"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*model.SecurityEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[uuid.UUID]*model.SecurityEvent)}
}

func (r *fakeEventRepo) Save(_ context.Context, event *model.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *event
	r.events[event.ID] = &stored
	return nil
}

func (r *fakeEventRepo) Update(_ context.Context, event *model.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return model.ErrNotFound
	}
	stored := *event
	r.events[event.ID] = &stored
	return nil
}

func (r *fakeEventRepo) GetByID(_ context.Context, id uuid.UUID) (*model.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	event := *stored
	return &event, nil
}

func (r *fakeEventRepo) Delete(_ context.Context, event *model.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return model.ErrNotFound
	}
	delete(r.events, event.ID)
	return nil
}

func (r *fakeEventRepo) List(_ context.Context, _, limit int) ([]*model.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.SecurityEvent, 0, len(r.events))
	for _, stored := range r.events {
		event := *stored
		out = append(out, &event)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeBlocklistRepo struct {
	mu      sync.Mutex
	entries map[string]*model.IPBlockEntry
}

func newFakeBlocklistRepo() *fakeBlocklistRepo {
	return &fakeBlocklistRepo{entries: make(map[string]*model.IPBlockEntry)}
}

func (r *fakeBlocklistRepo) Upsert(_ context.Context, entry *model.IPBlockEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *entry
	r.entries[entry.IPAddress] = &stored
	return nil
}

func (r *fakeBlocklistRepo) Get(_ context.Context, ipAddress string) (*model.IPBlockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[ipAddress]
	if !ok {
		return nil, model.ErrNotFound
	}
	entry := *stored
	return &entry, nil
}

func (r *fakeBlocklistRepo) List(_ context.Context) ([]*model.IPBlockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.IPBlockEntry, 0, len(r.entries))
	for _, stored := range r.entries {
		entry := *stored
		out = append(out, &entry)
	}
	return out, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*model.AuditLogEntry
}

func (r *fakeRecorder) Record(_ context.Context, entry *model.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRecorder) byAction(actionType string) []*model.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditLogEntry
	for _, e := range r.entries {
		if e.ActionType == actionType {
			out = append(out, e)
		}
	}
	return out
}

func newTestEventService(t *testing.T) (*EventService, *fakeEventRepo, *fakeBlocklistRepo, *fakeRecorder) {
	t.Helper()
	events := newFakeEventRepo()
	blocklist := newFakeBlocklistRepo()
	recorder := &fakeRecorder{}
	h := hub.NewHub(16)
	t.Cleanup(h.Close)
	buckets := bucketing.NewManager(&config.Config{
		Bucketing: config.BucketingConfig{EventBuckets: 16, LockStripes: 8},
	})
	svc := NewEventService(events, blocklist, nil, recorder, h, buckets)
	return svc, events, blocklist, recorder
}

func reportEvent(t *testing.T, svc *EventService, threat int) *model.SecurityEvent {
	t.Helper()
	event, err := svc.Report(context.Background(), &model.SecurityEvent{
		EventType:   "brute_force_attempt",
		UserEmail:   "victim@example.com",
		IPAddress:   "203.0.113.10",
		ThreatLevel: threat,
	})
	require.NoError(t, err)
	return event
}

func TestReportRequiresTypeAndAddress(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)

	_, err := svc.Report(context.Background(), &model.SecurityEvent{IPAddress: "203.0.113.10"})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	_, err = svc.Report(context.Background(), &model.SecurityEvent{EventType: "probe"})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestReportRejectsOutOfRangeThreat(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	_, err := svc.Report(context.Background(), &model.SecurityEvent{
		EventType: "probe", IPAddress: "203.0.113.10", ThreatLevel: 11,
	})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestReportDefaultsSeverityFromThreat(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)

	assert.Equal(t, model.SeverityCritical, reportEvent(t, svc, 9).Severity)
	assert.Equal(t, model.SeverityHigh, reportEvent(t, svc, 7).Severity)
	assert.Equal(t, model.SeverityMedium, reportEvent(t, svc, 5).Severity)
	assert.Equal(t, model.SeverityLow, reportEvent(t, svc, 2).Severity)
}

func TestReportKeepsExplicitSeverity(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	event, err := svc.Report(context.Background(), &model.SecurityEvent{
		EventType: "probe", IPAddress: "203.0.113.10", ThreatLevel: 2,
		Severity: model.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, event.Severity)
	assert.Equal(t, model.EventActive, event.Status)
}

func TestResolveDefaultsNotes(t *testing.T) {
	svc, _, _, recorder := newTestEventService(t)
	event := reportEvent(t, svc, 6)

	resolved, err := svc.Resolve(context.Background(), event.ID, "", "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, model.EventResolved, resolved.Status)
	assert.Equal(t, defaultResolutionNotes, resolved.ResolutionNotes)
	assert.Equal(t, "admin@example.com", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Len(t, recorder.byAction("security_event_resolve"), 1)
}

func TestResolveIsIdempotent(t *testing.T) {
	svc, _, _, recorder := newTestEventService(t)
	event := reportEvent(t, svc, 6)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, event.ID, "done", "admin@example.com")
	require.NoError(t, err)

	again, err := svc.Resolve(ctx, event.ID, "other notes", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "done", again.ResolutionNotes)
	// The second call is a read, not a mutation, so only one audit entry.
	assert.Len(t, recorder.byAction("security_event_resolve"), 1)
}

func TestResolveBlockedEventRejected(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	event := reportEvent(t, svc, 8)
	ctx := context.Background()

	_, err := svc.BlockSource(ctx, event.ID, "", "", "admin@example.com")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, event.ID, "", "admin@example.com")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestReopenClearsResolutionFields(t *testing.T) {
	svc, _, _, recorder := newTestEventService(t)
	event := reportEvent(t, svc, 6)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, event.ID, "false positive", "admin@example.com")
	require.NoError(t, err)

	reopened, err := svc.Reopen(ctx, event.ID, "attack resumed", "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, model.EventActive, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Empty(t, reopened.ResolvedBy)
	assert.Empty(t, reopened.ResolutionNotes)
	require.NotNil(t, reopened.ReopenedAt)
	assert.Equal(t, "attack resumed", reopened.ReopenReason)
	assert.Len(t, recorder.byAction("security_event_reopen"), 1)
}

func TestReopenOnlyFromResolved(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	ctx := context.Background()

	active := reportEvent(t, svc, 6)
	_, err := svc.Reopen(ctx, active.ID, "", "admin@example.com")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	blocked := reportEvent(t, svc, 8)
	_, err = svc.BlockSource(ctx, blocked.ID, "", "", "admin@example.com")
	require.NoError(t, err)
	_, err = svc.Reopen(ctx, blocked.ID, "", "admin@example.com")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestBlockSourceDefaultsAddressAndReason(t *testing.T) {
	svc, _, blocklist, recorder := newTestEventService(t)
	event := reportEvent(t, svc, 8)

	blocked, err := svc.BlockSource(context.Background(), event.ID, "", "", "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.EventBlocked, blocked.Status)

	entry, err := blocklist.Get(context.Background(), event.IPAddress)
	require.NoError(t, err)
	assert.Equal(t, "Blocked due to security event: brute_force_attempt", entry.Reason)
	assert.Equal(t, event.ID, entry.SecurityEventID)
	assert.Len(t, recorder.byAction("ip_block"), 1)
}

func TestBlockSourceFromResolvedState(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	ctx := context.Background()
	event := reportEvent(t, svc, 6)

	_, err := svc.Resolve(ctx, event.ID, "", "admin@example.com")
	require.NoError(t, err)

	blocked, err := svc.BlockSource(ctx, event.ID, "", "", "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.EventBlocked, blocked.Status)
}

func TestBlockSourceIsIdempotent(t *testing.T) {
	svc, _, blocklist, _ := newTestEventService(t)
	ctx := context.Background()
	event := reportEvent(t, svc, 8)

	_, err := svc.BlockSource(ctx, event.ID, "", "first block", "admin@example.com")
	require.NoError(t, err)

	again, err := svc.BlockSource(ctx, event.ID, "", "second block", "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.EventBlocked, again.Status)

	// Re-blocking refreshes the entry instead of erroring.
	entry, err := blocklist.Get(ctx, event.IPAddress)
	require.NoError(t, err)
	assert.Equal(t, "second block", entry.Reason)
}

func TestDeleteIsAlwaysAudited(t *testing.T) {
	svc, events, _, recorder := newTestEventService(t)
	event := reportEvent(t, svc, 6)

	err := svc.Delete(context.Background(), event.ID, "admin@example.com")
	require.NoError(t, err)

	_, err = events.GetByID(context.Background(), event.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	deletions := recorder.byAction("security_event_delete")
	require.Len(t, deletions, 1)
	assert.Equal(t, "high", deletions[0].Severity)
	assert.Equal(t, "security_event", deletions[0].ResourceType)
	assert.Equal(t, event.ID.String(), deletions[0].ResourceID)
}

func TestDeleteUnknownEvent(t *testing.T) {
	svc, _, _, recorder := newTestEventService(t)
	err := svc.Delete(context.Background(), uuid.New(), "admin@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, recorder.entries)
}

func TestListDefaultsToActiveAndSortsByThreat(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)
	ctx := context.Background()

	low := reportEvent(t, svc, 3)
	high := reportEvent(t, svc, 9)
	resolved := reportEvent(t, svc, 5)
	_, err := svc.Resolve(ctx, resolved.ID, "", "admin@example.com")
	require.NoError(t, err)

	events, summary, err := svc.List(ctx, EventListFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, high.ID, events[0].ID)
	assert.Equal(t, low.ID, events[1].ID)
	assert.Equal(t, 2, summary.ActiveThreats)

	all, _, err := svc.List(ctx, EventListFilter{Status: model.FilterAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListMinThreatFilter(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)

	reportEvent(t, svc, 3)
	high := reportEvent(t, svc, 9)

	events, _, err := svc.List(context.Background(), EventListFilter{MinThreat: 7})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, high.ID, events[0].ID)
}

func TestListRejectsInvalidFilter(t *testing.T) {
	svc, _, _, _ := newTestEventService(t)

	_, _, err := svc.List(context.Background(), EventListFilter{Status: "deleted"})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	_, _, err = svc.List(context.Background(), EventListFilter{MinThreat: 11})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestIsBlockedFallsBackToDurableStore(t *testing.T) {
	svc, _, blocklist, _ := newTestEventService(t)
	ctx := context.Background()

	blocked, err := svc.IsBlocked(ctx, "203.0.113.99")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, blocklist.Upsert(ctx, &model.IPBlockEntry{
		IPAddress: "203.0.113.99",
		Reason:    "manual block",
		BlockedAt: time.Now().UTC(),
	}))

	blocked, err = svc.IsBlocked(ctx, "203.0.113.99")
	require.NoError(t, err)
	assert.True(t, blocked)
}

package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"monitor-engine/internal/config"
)

// Manager assigns stable buckets to keys. The engine uses it in two places:
// Scylla partition buckets for security events, and stripe indexes for the
// per-key mutexes that serialize alert and event mutations.
type Manager struct {
	eventBuckets int
	lockStripes  int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		eventBuckets: cfg.Bucketing.EventBuckets,
		lockStripes:  cfg.Bucketing.LockStripes,
	}

	// Pool of hash functions to avoid per-call allocation on the hot
	// ingestion path.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// EventBucket returns the Scylla partition bucket for an event key
// (0 to eventBuckets-1).
func (m *Manager) EventBucket(key string) int {
	return int(m.hash(key) % uint64(m.eventBuckets))
}

// LockStripe returns the mutex stripe index for a mutation key. All writers
// of the same key always land on the same stripe.
func (m *Manager) LockStripe(key string) int {
	return int(m.hash(key) % uint64(m.lockStripes))
}

// LockStripes reports the configured stripe count.
func (m *Manager) LockStripes() int {
	return m.lockStripes
}

// DateBucket returns the UTC date partition token for time-series rows.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"monitor-engine/internal/config"
)

func testManager() *Manager {
	return NewManager(&config.Config{
		Bucketing: config.BucketingConfig{EventBuckets: 64, LockStripes: 128},
	})
}

func TestEventBucketIsStable(t *testing.T) {
	m := testManager()

	first := m.EventBucket("some-event-id")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, m.EventBucket("some-event-id"))
	}
}

func TestEventBucketRange(t *testing.T) {
	m := testManager()

	keys := []string{"a", "b", "c", "cpu_usage/api-gateway", "memory_usage/worker"}
	for _, key := range keys {
		bucket := m.EventBucket(key)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 64)
	}
}

func TestLockStripeSameKeySameStripe(t *testing.T) {
	m := testManager()

	stripe := m.LockStripe("cpu_usage/api-gateway")
	assert.Equal(t, stripe, m.LockStripe("cpu_usage/api-gateway"))
	assert.Less(t, stripe, m.LockStripes())
}

func TestLockStripeConcurrentUse(t *testing.T) {
	m := testManager()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				m.LockStripe("shared-key")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, m.LockStripe("shared-key"), m.LockStripe("shared-key"))
}

func TestDateBucketFormatsUTC(t *testing.T) {
	m := testManager()

	ts := time.Date(2026, 8, 30, 23, 59, 0, 0, time.FixedZone("plus2", 2*3600))
	assert.Equal(t, "2026-08-30", m.DateBucket(ts))
}

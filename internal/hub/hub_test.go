package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/model"
)

func TestSubscribeDeliversConnectedFirst(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	sub := h.Subscribe()
	defer sub.Close()

	h.Publish(model.StreamMessage{Type: model.StreamNewAlerts})

	first := <-sub.Messages()
	assert.Equal(t, model.StreamConnected, first.Type)
	assert.NotEmpty(t, first.Message)

	second := <-sub.Messages()
	assert.Equal(t, model.StreamNewAlerts, second.Type)
}

func TestPublishStampsTimestamp(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	sub := h.Subscribe()
	defer sub.Close()
	<-sub.Messages()

	h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate})
	msg := <-sub.Messages()
	assert.False(t, msg.Timestamp.IsZero())
}

func TestPublishShedsOldestWhenQueueFull(t *testing.T) {
	h := NewHub(2)
	defer h.Close()

	sub := h.Subscribe()
	defer sub.Close()

	// Queue holds the connected message plus one slot. Publishing three more
	// messages must shed the oldest entries rather than block.
	h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate, Message: "1"})
	h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate, Message: "2"})
	h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate, Message: "3"})

	assert.Greater(t, h.Dropped(), uint64(0))

	// The newest message survived at the tail of the queue.
	var last model.StreamMessage
	for i := 0; i < 2; i++ {
		last = <-sub.Messages()
	}
	assert.Equal(t, "3", last.Message)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	sub := h.Subscribe()
	assert.Equal(t, 1, h.Count())

	sub.Close()
	sub.Close()
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Count())

	// Queue is closed after teardown.
	_, open := <-sub.Messages()
	for open {
		_, open = <-sub.Messages()
	}
}

func TestPublishAfterUnsubscribeDoesNotPanic(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	sub := h.Subscribe()
	sub.Close()

	h.Publish(model.StreamMessage{Type: model.StreamNewAlerts})
}

func TestCloseTearsDownAllSubscriptions(t *testing.T) {
	h := NewHub(4)

	sub1 := h.Subscribe()
	sub2 := h.Subscribe()
	require.Equal(t, 2, h.Count())

	h.Close()
	assert.Equal(t, 0, h.Count())

	// Publish and repeated close after shutdown are no-ops.
	h.Publish(model.StreamMessage{Type: model.StreamNewAlerts})
	h.Close()

	drain := func(sub *Subscription) {
		for range sub.Messages() {
		}
	}
	drain(sub1)
	drain(sub2)
}

func TestSubscribeAfterCloseReturnsClosedQueue(t *testing.T) {
	h := NewHub(4)
	h.Close()

	sub := h.Subscribe()
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.Equal(t, 0, h.Count())
}

func TestConnectedPrecedesConcurrentPublishes(t *testing.T) {
	h := NewHub(8)
	defer h.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate})
			}
		}
	}()

	// No matter how publishes interleave with registration, the
	// acknowledgment is always the first message a session sees.
	for i := 0; i < 50; i++ {
		sub := h.Subscribe()
		first := <-sub.Messages()
		assert.Equal(t, model.StreamConnected, first.Type)
		sub.Close()
	}
	close(stop)
	<-done
}

func TestSubscribeRacingCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		h := NewHub(4)

		var wg sync.WaitGroup
		subs := make([]*Subscription, 8)
		for j := range subs {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				subs[j] = h.Subscribe()
			}(j)
		}
		h.Close()
		wg.Wait()

		// Every queue ends up closed, and any buffered message leading it
		// is the acknowledgment.
		for _, sub := range subs {
			sub.Close()
			if msg, open := <-sub.Messages(); open {
				assert.Equal(t, model.StreamConnected, msg.Type)
			}
			for range sub.Messages() {
			}
		}
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub(8)
	defer h.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.Publish(model.StreamMessage{Type: model.StreamMetricsUpdate})
		}
	}()

	for i := 0; i < 10; i++ {
		sub := h.Subscribe()
		<-sub.Messages()
		sub.Close()
	}
	<-done
}

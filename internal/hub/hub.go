package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monitor-engine/internal/model"
	"monitor-engine/internal/util"
)

const defaultQueueSize = 64

// Subscription is one live dashboard session's handle on the hub. The
// delivery queue is bounded; a stalled consumer loses its oldest messages
// instead of growing server memory.
type Subscription struct {
	ID          string
	ConnectedAt time.Time

	queue chan model.StreamMessage
	hub   *Hub
	once  sync.Once
}

// Messages is the consumer side of the delivery queue. The channel closes
// when the subscription is torn down.
func (s *Subscription) Messages() <-chan model.StreamMessage {
	return s.queue
}

// Close detaches the subscription. Safe to call more than once and safe from
// the consumer's teardown path.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub fans out stream messages to every live subscription. Producers never
// block on consumers: enqueue is non-blocking and sheds the oldest queued
// message when a queue is full.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	queueSize int
	closed    bool

	dropped atomic.Uint64
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
	}
}

// Subscribe registers a new session. The first message on the queue is always
// the connected acknowledgment.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now().UTC(),
		queue:       make(chan model.StreamMessage, h.queueSize),
	}
	sub.hub = h

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.queue)
		return sub
	}
	// Enqueue the acknowledgment before the subscription becomes visible:
	// once it is in subs, a concurrent Publish could slot a message ahead of
	// it and a concurrent Close could close the queue under the send. The
	// queue capacity is at least one, so this never blocks.
	sub.queue <- model.ConnectedMessage()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	util.Debug("Stream subscription opened",
		zap.String("subscription_id", sub.ID),
		zap.Int("queue_size", h.queueSize))

	return sub
}

// Unsubscribe removes a subscription and closes its queue. Idempotent:
// repeated calls and calls racing a hub shutdown are no-ops.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, present := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	h.mu.Unlock()

	if present {
		sub.once.Do(func() { close(sub.queue) })
		util.Debug("Stream subscription closed", zap.String("subscription_id", sub.ID))
	}
}

// Publish enqueues a message to every live subscription. If a subscription's
// queue is full, its oldest queued message is dropped to make room: bounded
// staleness beats unbounded memory.
func (h *Hub) Publish(msg model.StreamMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		select {
		case sub.queue <- msg:
		default:
			// Shed the oldest entry, then retry once. A concurrent consumer
			// read can make room in between, so the retry may also hit a
			// free slot directly.
			select {
			case <-sub.queue:
				h.dropped.Add(1)
			default:
			}
			select {
			case sub.queue <- msg:
			default:
			}
		}
	}
}

// Dropped returns how many queued messages were shed to slow consumers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close tears down every subscription. Used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.queue) })
	}

	util.Info("Stream hub closed")
}

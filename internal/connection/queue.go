package connection

import (
	"sync"
	"time"

	"github.com/tidewave/realtime/internal/eventbus"
)

// MessageQueue is a bounded, age-limited FIFO buffer for outbound
// payloads made while disconnected. Inserting at capacity evicts the
// oldest entry; expired entries are discarded lazily on drain. Outbound
// traffic while disconnected is best-effort, so neither path is an
// error.
type MessageQueue struct {
	maxSize int
	maxAge  time.Duration

	mu    sync.Mutex
	items []QueuedMessage
	now   func() time.Time
}

// NewMessageQueue creates a queue bounded by maxSize entries and maxAge
// per entry.
func NewMessageQueue(maxSize int, maxAge time.Duration) *MessageQueue {
	return &MessageQueue{
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Enqueue buffers one payload. At capacity the oldest entry is evicted
// first.
func (q *MessageQueue) Enqueue(topic eventbus.Topic, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		q.items = q.items[1:]
	}
	q.items = append(q.items, QueuedMessage{
		Topic:      topic,
		Payload:    payload,
		EnqueuedAt: q.now(),
	})
}

// DequeueAll removes and returns every buffered entry, oldest first,
// after discarding entries older than maxAge.
func (q *MessageQueue) DequeueAll() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	if len(items) == 0 {
		return nil
	}

	cutoff := q.now().Add(-q.maxAge)
	fresh := items[:0]
	for _, msg := range items {
		if msg.EnqueuedAt.After(cutoff) {
			fresh = append(fresh, msg)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return fresh
}

// Size returns the current number of buffered entries.
func (q *MessageQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all buffered entries.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

package connection

import (
	"testing"
	"time"
)

func TestMessageQueue_FIFOOrder(t *testing.T) {
	q := NewMessageQueue(10, time.Minute)

	q.Enqueue(TopicChatMessage, "a")
	q.Enqueue(TopicChatMessage, "b")
	q.Enqueue(TopicChatMessage, "c")

	got := q.DequeueAll()
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Payload != want {
			t.Errorf("message[%d] = %v, want %q", i, got[i].Payload, want)
		}
	}

	if q.Size() != 0 {
		t.Errorf("Size = %d after DequeueAll, want 0", q.Size())
	}
}

func TestMessageQueue_CapacityEvictsOldest(t *testing.T) {
	q := NewMessageQueue(3, time.Minute)

	for _, p := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue(TopicChatMessage, p)
	}

	if q.Size() != 3 {
		t.Fatalf("Size = %d, want 3 (bounded)", q.Size())
	}

	got := q.DequeueAll()
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Payload != want {
			t.Errorf("message[%d] = %v, want %q (oldest evicted first)", i, got[i].Payload, want)
		}
	}
}

func TestMessageQueue_ExpiryOnDrain(t *testing.T) {
	q := NewMessageQueue(10, 5*time.Minute)

	now := time.Now()
	q.now = func() time.Time { return now }

	q.Enqueue(TopicChatMessage, "old")

	now = now.Add(3 * time.Minute)
	q.Enqueue(TopicChatMessage, "fresh")

	// Advance past the first entry's lifetime but not the second's.
	now = now.Add(3 * time.Minute)

	got := q.DequeueAll()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Payload != "fresh" {
		t.Errorf("payload = %v, want fresh", got[0].Payload)
	}
}

func TestMessageQueue_AllExpired(t *testing.T) {
	q := NewMessageQueue(10, time.Minute)

	now := time.Now()
	q.now = func() time.Time { return now }

	q.Enqueue(TopicChatMessage, "a")
	q.Enqueue(TopicChatMessage, "b")

	now = now.Add(2 * time.Minute)

	if got := q.DequeueAll(); got != nil {
		t.Errorf("DequeueAll = %v, want nil (all expired)", got)
	}
}

func TestMessageQueue_Clear(t *testing.T) {
	q := NewMessageQueue(10, time.Minute)

	q.Enqueue(TopicChatMessage, "a")
	q.Clear()

	if q.Size() != 0 {
		t.Errorf("Size = %d after Clear, want 0", q.Size())
	}
	if got := q.DequeueAll(); got != nil {
		t.Errorf("DequeueAll = %v after Clear, want nil", got)
	}
}

func TestMessageQueue_DequeueAllEmpty(t *testing.T) {
	q := NewMessageQueue(10, time.Minute)
	if got := q.DequeueAll(); got != nil {
		t.Errorf("DequeueAll on empty queue = %v, want nil", got)
	}
}

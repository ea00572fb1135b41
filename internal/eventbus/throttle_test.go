package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestThrottle_KeepsMostRecentPayload(t *testing.T) {
	var mu sync.Mutex
	var got []any
	th := NewThrottle(50*time.Millisecond, func(p any) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	defer th.Stop()

	th.Emit("stale")
	th.Emit("fresh")

	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1: %v", len(got), got)
	}
	if got[0] != "fresh" {
		t.Errorf("delivered %v, want fresh", got[0])
	}
}

func TestThrottle_OneDeliveryPerWindow(t *testing.T) {
	var mu sync.Mutex
	var count int
	th := NewThrottle(30*time.Millisecond, func(p any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer th.Stop()

	// Two bursts in separate windows.
	for i := 0; i < 5; i++ {
		th.Emit(i)
	}
	time.Sleep(100 * time.Millisecond)
	for i := 5; i < 10; i++ {
		th.Emit(i)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("deliveries = %d, want 2 (one per window)", count)
	}
}

func TestThrottle_StopDiscardsPending(t *testing.T) {
	var mu sync.Mutex
	var fired bool
	th := NewThrottle(10*time.Millisecond, func(p any) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	th.Emit("pending")
	th.Stop()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("delivery fired after Stop, want discarded")
	}
}

package eventbus

import (
	"sync"
	"time"
)

// Throttle rate-limits delivery to at most one payload per delay window,
// always carrying the most recent value received inside the window
// (trailing-edge: a window's final value is never dropped).
type Throttle struct {
	delay time.Duration
	emit  func(any)

	mu      sync.Mutex
	pending any
	armed   bool
	timer   *time.Timer
	stopped bool
}

// NewThrottle creates a throttle that delivers through emit.
func NewThrottle(delay time.Duration, emit func(any)) *Throttle {
	return &Throttle{
		delay: delay,
		emit:  emit,
	}
}

// Emit records payload as the window's latest value. The first payload
// of a window opens it; the value held when the window closes is
// delivered exactly once.
func (t *Throttle) Emit(payload any) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	t.pending = payload
	t.armed = true
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, t.fire)
	}
	t.mu.Unlock()
}

// Stop cancels the window timer and discards any pending payload.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.armed = false
}

// fire closes the window and delivers its final value.
func (t *Throttle) fire() {
	t.mu.Lock()
	if t.stopped || !t.armed {
		t.timer = nil
		t.mu.Unlock()
		return
	}
	payload := t.pending
	t.pending = nil
	t.armed = false
	t.timer = nil
	t.mu.Unlock()

	t.emit(payload)
}

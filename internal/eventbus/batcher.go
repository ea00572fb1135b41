package eventbus

import (
	"sync"
	"time"
)

// Batcher accumulates payloads and flushes them as a single slice, either
// when size payloads have been buffered or delay after the first buffered
// payload, whichever comes first. A pending timer exists only while the
// buffer is non-empty.
type Batcher struct {
	size  int
	delay time.Duration
	flush func([]any)

	mu      sync.Mutex
	buf     []any
	timer   *time.Timer
	stopped bool
}

// NewBatcher creates a batcher that delivers through flush.
func NewBatcher(size int, delay time.Duration, flush func([]any)) *Batcher {
	return &Batcher{
		size:  size,
		delay: delay,
		flush: flush,
	}
}

// Add buffers one payload. Reaching the size threshold flushes
// immediately, before the delay timer would have fired.
func (b *Batcher) Add(payload any) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}

	b.buf = append(b.buf, payload)

	if len(b.buf) >= b.size {
		items := b.takeLocked()
		b.mu.Unlock()
		b.flush(items)
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, b.flushExpired)
	}
	b.mu.Unlock()
}

// Stop cancels any pending timer and discards buffered payloads.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buf = nil
}

// Pending returns the number of buffered payloads awaiting flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// flushExpired fires when the delay timer elapses.
func (b *Batcher) flushExpired() {
	b.mu.Lock()
	if b.stopped || len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	items := b.takeLocked()
	b.mu.Unlock()
	b.flush(items)
}

// takeLocked removes and returns the buffer, clearing the timer.
// Caller must hold b.mu.
func (b *Batcher) takeLocked() []any {
	items := b.buf
	b.buf = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return items
}

package connection

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// jitterRange bounds the additive jitter applied to each grown delay,
// spreading reconnect attempts of independent clients apart.
const jitterRange = time.Second

// Reconnector is the backoff and attempt-budget state machine driving
// automatic reconnection. It has no knowledge of the network: the caller
// supplies the connect function and decides whether to keep retrying.
type Reconnector struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	attempts int
	delay    time.Duration
	cancelCh chan struct{}
}

// NewReconnector creates a reconnector with the given attempt budget and
// delay bounds.
func NewReconnector(maxAttempts int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconnector{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger,
		delay:       baseDelay,
		cancelCh:    make(chan struct{}),
	}
}

// CanReconnect reports whether the attempt budget allows another
// automatic attempt.
func (r *Reconnector) CanReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts < r.maxAttempts
}

// Attempts returns the number of consecutive failed attempts since the
// last reset.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Delay returns the wait before the next attempt.
func (r *Reconnector) Delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delay
}

// Reset restores the attempt counter and delay to their initial values
// and rearms a previous Cancel. Call on every successful connect.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
	r.delay = r.baseDelay
	select {
	case <-r.cancelCh:
		r.cancelCh = make(chan struct{})
	default:
	}
}

// Cancel aborts an in-flight backoff wait, e.g. on explicit disconnect.
// The reconnector stays cancelled until the next Reset.
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.cancelCh:
	default:
		close(r.cancelCh)
	}
}

// AttemptReconnect waits the current backoff delay, then invokes
// connect. On success the state resets and the attempt is reported as
// true. On failure the attempt counter increments, the delay grows
// (doubled plus jitter, capped at the ceiling), and false is returned
// with the connect error; the caller decides whether to try again.
func (r *Reconnector) AttemptReconnect(ctx context.Context, connect func(context.Context) error) (bool, error) {
	r.mu.Lock()
	if r.attempts >= r.maxAttempts {
		r.mu.Unlock()
		return false, ErrReconnectExhausted
	}
	wait := r.delay
	cancel := r.cancelCh
	attempt := r.attempts + 1
	r.mu.Unlock()

	r.logger.Debug("waiting before reconnect attempt",
		"attempt", attempt,
		"delay", wait,
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-cancel:
		return false, ErrReconnectCancelled
	case <-timer.C:
	}

	if err := connect(ctx); err != nil {
		r.mu.Lock()
		r.attempts++
		next := r.delay*2 + time.Duration(rand.Int63n(int64(jitterRange)))
		if next > r.maxDelay {
			next = r.maxDelay
		}
		r.delay = next
		r.mu.Unlock()
		return false, err
	}

	r.Reset()
	return true, nil
}

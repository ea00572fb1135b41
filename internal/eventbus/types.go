package eventbus

import "time"

// Topic identifies an event stream on the bus. Known topics are declared
// as constants by the packages that emit them; the bus itself treats the
// value as opaque.
type Topic string

// Handler receives a single emitted payload. Subscriptions registered
// with Batched options receive a []any containing the buffered payloads
// of one flush instead of individual values.
type Handler func(payload any)

// SubscribeOptions selects the delivery mode for one subscription.
// Batched and Throttled are mutually exclusive; if both are set the
// subscription is batched and the throttle options are ignored.
type SubscribeOptions struct {
	// Batched buffers emitted payloads and delivers them as one []any,
	// either when BatchSize payloads have accumulated or BatchDelay after
	// the first buffered payload, whichever comes first.
	Batched    bool
	BatchSize  int
	BatchDelay time.Duration

	// Throttled delivers at most one payload per ThrottleDelay window,
	// carrying the most recent value (trailing-edge).
	Throttled     bool
	ThrottleDelay time.Duration
}

// DefaultBatchSize and DefaultBatchDelay apply when batched options are
// requested without explicit values.
const (
	DefaultBatchSize     = 10
	DefaultBatchDelay    = 100 * time.Millisecond
	DefaultThrottleDelay = 100 * time.Millisecond
)

package eventbus

import (
	"log/slog"
	"reflect"
	"sync"
)

// Bus is the typed publish/subscribe registry.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[Topic][]*subscription
}

// subscription is one registered listener and its delivery wrapper state.
type subscription struct {
	handler  Handler
	key      uintptr // identity of the original callback, for Unsubscribe
	batcher  *Batcher
	throttle *Throttle
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[Topic][]*subscription),
	}
}

// Subscribe registers handler for topic and returns a function that
// removes exactly that registration. The same handler may be registered
// multiple times; each registration is independent.
func (b *Bus) Subscribe(topic Topic, handler Handler, opts SubscribeOptions) func() {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{
		handler: handler,
		key:     reflect.ValueOf(handler).Pointer(),
	}

	switch {
	case opts.Batched:
		if opts.Throttled {
			b.logger.Warn("batched and throttled both requested, using batched",
				"topic", topic,
			)
		}
		size := opts.BatchSize
		if size <= 0 {
			size = DefaultBatchSize
		}
		delay := opts.BatchDelay
		if delay <= 0 {
			delay = DefaultBatchDelay
		}
		sub.batcher = NewBatcher(size, delay, func(items []any) {
			b.invoke(topic, handler, items)
		})

	case opts.Throttled:
		delay := opts.ThrottleDelay
		if delay <= 0 {
			delay = DefaultThrottleDelay
		}
		sub.throttle = NewThrottle(delay, func(payload any) {
			b.invoke(topic, handler, payload)
		})
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return func() {
		b.remove(topic, sub)
	}
}

// Emit delivers payload to every subscriber of topic, synchronously and
// in registration order. Batched and throttled subscriptions defer
// delivery through their wrappers; Emit itself never queues.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		switch {
		case sub.batcher != nil:
			sub.batcher.Add(payload)
		case sub.throttle != nil:
			sub.throttle.Emit(payload)
		default:
			b.invoke(topic, sub.handler, payload)
		}
	}
}

// Unsubscribe removes one registration of handler on topic, matched by
// callback identity. If handler was registered more than once, only the
// earliest registration is removed.
func (b *Bus) Unsubscribe(topic Topic, handler Handler) {
	if handler == nil {
		return
	}
	key := reflect.ValueOf(handler).Pointer()

	b.mu.Lock()
	var removed *subscription
	list := b.subs[topic]
	for i, sub := range list {
		if sub.key == key {
			removed = sub
			b.subs[topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()

	if removed != nil {
		removed.teardown()
	}
}

// ListenerCount returns the number of registrations for topic.
func (b *Bus) ListenerCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Clear removes every subscription and tears down all batch/throttle
// state. Pending buffered items are discarded, not flushed.
func (b *Bus) Clear() {
	b.mu.Lock()
	all := b.subs
	b.subs = make(map[Topic][]*subscription)
	b.mu.Unlock()

	for _, list := range all {
		for _, sub := range list {
			sub.teardown()
		}
	}
}

// remove drops a specific subscription (identity, not callback pointer).
func (b *Bus) remove(topic Topic, target *subscription) {
	b.mu.Lock()
	list := b.subs[topic]
	found := false
	for i, sub := range list {
		if sub == target {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()

	if found {
		target.teardown()
	}
}

// invoke runs a handler, recovering panics so one failing subscriber
// cannot break the fan-out for its siblings.
func (b *Bus) invoke(topic Topic, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic",
				"topic", topic,
				"panic", r,
			)
		}
	}()
	handler(payload)
}

// teardown releases any batcher/throttle timers owned by the
// subscription. Buffered items are discarded.
func (s *subscription) teardown() {
	if s.batcher != nil {
		s.batcher.Stop()
	}
	if s.throttle != nil {
		s.throttle.Stop()
	}
}

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tidewave/realtime/internal/eventbus"
)

// Runtime orchestrates the connection lifecycle. It owns the channel,
// the reconnection state machine, and the outbound queue; all access to
// them is mediated through the runtime's methods.
type Runtime struct {
	cfg     Config
	tokens  TokenSource
	factory ChannelFactory
	bus     *eventbus.Bus
	queue   *MessageQueue
	recon   *Reconnector
	logger  *slog.Logger

	// Topics dropped instead of queued while disconnected
	ephemeral map[eventbus.Topic]struct{}

	mu           sync.Mutex
	channel      Channel
	connected    bool
	reconnecting bool
	userClosed   bool
	gen          uint64 // session generation, guards stale callbacks
	attempt      *connectAttempt
	sessionStop  chan struct{}
	latency      time.Duration
	pendingPings map[string]chan time.Duration
}

// connectAttempt coalesces concurrent Connect callers onto one result.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// New creates a runtime. The bus is injected so consumers and tests can
// construct isolated instances; a nil bus gets a private one. Zero
// config fields fall back to DefaultConfig values.
func New(cfg Config, tokens TokenSource, factory ChannelFactory, bus *eventbus.Bus, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	cfg = withDefaults(cfg)

	ephemeral := make(map[eventbus.Topic]struct{}, len(cfg.DropWhenDisconnected))
	for _, topic := range cfg.DropWhenDisconnected {
		ephemeral[topic] = struct{}{}
	}

	return &Runtime{
		cfg:          cfg,
		tokens:       tokens,
		factory:      factory,
		bus:          bus,
		queue:        NewMessageQueue(cfg.QueueMaxSize, cfg.QueueMaxAge),
		recon:        NewReconnector(cfg.MaxReconnectAttempts, cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, logger),
		logger:       logger,
		ephemeral:    ephemeral,
		pendingPings: make(map[string]chan time.Duration),
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.QueueMaxSize == 0 {
		cfg.QueueMaxSize = def.QueueMaxSize
	}
	if cfg.QueueMaxAge == 0 {
		cfg.QueueMaxAge = def.QueueMaxAge
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.DropWhenDisconnected == nil {
		cfg.DropWhenDisconnected = def.DropWhenDisconnected
	}
	return cfg
}

// Connect establishes the session. It is idempotent and coalescing:
// when an attempt is already in flight, concurrent callers wait for the
// same result instead of opening a second channel. A manual Connect
// restores the reconnect attempt budget.
func (r *Runtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.connected {
		r.mu.Unlock()
		return nil
	}
	if att := r.attempt; att != nil {
		r.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	r.attempt = att
	r.userClosed = false
	r.mu.Unlock()

	// An explicit connect supersedes any scheduled reconnection and
	// restores the attempt budget.
	r.recon.Cancel()
	r.recon.Reset()

	err := r.openSession(ctx)

	r.mu.Lock()
	r.attempt = nil
	r.mu.Unlock()
	att.err = err
	close(att.done)
	return err
}

// openSession looks up the credential, opens a fresh channel, flips the
// runtime to connected, replays the queue, and starts the session
// goroutines. Shared by Connect and the reconnect loop.
func (r *Runtime) openSession(ctx context.Context) error {
	token := r.tokens.Token()
	if token == "" {
		return ErrNoToken
	}

	ch := r.factory()
	openCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	err := ch.Open(openCtx, AuthPayload{Token: token})
	cancel()
	if err != nil {
		ch.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return err
	}

	r.mu.Lock()
	if r.userClosed {
		r.mu.Unlock()
		ch.Close()
		return ErrReconnectCancelled
	}
	if r.connected {
		// A concurrent path already established a session.
		r.mu.Unlock()
		ch.Close()
		return nil
	}
	r.gen++
	gen := r.gen
	r.channel = ch
	r.connected = true
	stop := make(chan struct{})
	r.sessionStop = stop

	// Replay buffered sends in FIFO order. This happens before the
	// lock is released, so no caller-issued Send can observe the
	// connected state ahead of the replayed messages.
	for _, msg := range r.queue.DequeueAll() {
		if err := ch.Send(msg.Topic, msg.Payload); err != nil {
			r.logger.Warn("queued send failed",
				"topic", msg.Topic,
				"error", err,
			)
		}
	}
	r.mu.Unlock()

	go r.sessionLoop(ch, gen, stop)
	go r.heartbeatLoop(ch, stop)

	r.logger.Info("connected", "gen", gen)
	r.bus.Emit(TopicConnect, nil)

	return nil
}

// Disconnect forces the disconnected state from any state: it cancels
// any scheduled reconnection, stops the heartbeat, closes the channel,
// fails in-flight pings, and clears the queue. A manual disconnect
// discards buffered sends intentionally.
func (r *Runtime) Disconnect() {
	r.mu.Lock()
	r.userClosed = true
	r.gen++
	ch := r.channel
	r.channel = nil
	r.connected = false
	r.stopSessionLocked()
	r.failPendingPingsLocked()
	r.mu.Unlock()

	r.recon.Cancel()

	if ch != nil {
		ch.Close()
	}
	r.queue.Clear()

	r.logger.Info("disconnected by caller")
}

// IsConnected reports whether a session is currently established.
func (r *Runtime) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// State returns the derived connection state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.connected:
		return StateConnected
	case r.attempt != nil || r.reconnecting:
		return StateConnecting
	default:
		return StateDisconnected
	}
}

// Send writes one named event if connected; otherwise the payload is
// buffered for replay on reconnect. Ephemeral topics are dropped
// instead of buffered.
func (r *Runtime) Send(topic eventbus.Topic, payload any) {
	r.mu.Lock()
	ch := r.channel
	connected := r.connected
	r.mu.Unlock()

	if connected && ch != nil {
		if err := ch.Send(topic, payload); err != nil {
			r.logger.Warn("send failed", "topic", topic, "error", err)
			r.bus.Emit(TopicError, err)
		}
		return
	}

	if _, drop := r.ephemeral[topic]; drop {
		return
	}
	r.queue.Enqueue(topic, payload)
}

// Ping performs a one-shot round-trip measurement with its own timeout,
// independent of the periodic heartbeat.
func (r *Runtime) Ping(ctx context.Context) (time.Duration, error) {
	r.mu.Lock()
	if !r.connected || r.channel == nil {
		r.mu.Unlock()
		return 0, ErrNotConnected
	}
	ch := r.channel
	id := uuid.NewString()
	resp := make(chan time.Duration, 1)
	r.pendingPings[id] = resp
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pendingPings, id)
		r.mu.Unlock()
	}()

	if err := ch.Send(TopicPing, pingPayload{ID: id, SentAt: time.Now().UnixNano()}); err != nil {
		return 0, err
	}

	timer := time.NewTimer(r.cfg.PingTimeout)
	defer timer.Stop()
	select {
	case rtt, ok := <-resp:
		if !ok {
			return 0, ErrNotConnected
		}
		return rtt, nil
	case <-timer.C:
		return 0, ErrPingTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Subscribe registers handler for topic on the runtime's bus.
func (r *Runtime) Subscribe(topic eventbus.Topic, handler eventbus.Handler, opts eventbus.SubscribeOptions) func() {
	return r.bus.Subscribe(topic, handler, opts)
}

// Unsubscribe removes one registration of handler on topic.
func (r *Runtime) Unsubscribe(topic eventbus.Topic, handler eventbus.Handler) {
	r.bus.Unsubscribe(topic, handler)
}

// Bus returns the runtime's event bus.
func (r *Runtime) Bus() *eventbus.Bus {
	return r.bus
}

// Metrics returns a snapshot of runtime statistics.
func (r *Runtime) Metrics() Metrics {
	r.mu.Lock()
	connected := r.connected
	latency := r.latency
	r.mu.Unlock()

	return Metrics{
		Connected:         connected,
		Latency:           latency,
		QueueSize:         r.queue.Size(),
		ReconnectAttempts: r.recon.Attempts(),
		CanReconnect:      r.recon.CanReconnect(),
	}
}

// sessionLoop consumes one channel's inbound events and its disconnect
// notification.
func (r *Runtime) sessionLoop(ch Channel, gen uint64, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case in, ok := <-ch.Inbound():
			if !ok {
				return
			}
			r.handleInbound(in)

		case reason := <-ch.Disconnects():
			r.handleSessionLoss(ch, gen, reason)
			return
		}
	}
}

// handleInbound normalizes one inbound event onto the bus. Pongs are
// consumed by the runtime itself.
func (r *Runtime) handleInbound(in Inbound) {
	if in.Topic == TopicPong {
		r.handlePong(in)
		return
	}
	r.bus.Emit(in.Topic, in.Data)
}

// handlePong resolves latency for heartbeat and manual pings.
func (r *Runtime) handlePong(in Inbound) {
	var p pingPayload
	if err := json.Unmarshal(in.Data, &p); err != nil {
		r.logger.Warn("malformed pong, dropping", "error", err)
		return
	}
	rtt := time.Since(time.Unix(0, p.SentAt))
	if rtt < 0 {
		rtt = 0
	}

	r.mu.Lock()
	r.latency = rtt
	resp := r.pendingPings[p.ID]
	delete(r.pendingPings, p.ID)
	r.mu.Unlock()

	if resp != nil {
		resp <- rtt
	}
}

// handleSessionLoss reacts to an abnormal channel close: a terminal
// (server-initiated) close rests in disconnected, anything else drives
// the reconnection state machine.
func (r *Runtime) handleSessionLoss(ch Channel, gen uint64, reason DisconnectReason) {
	r.mu.Lock()
	if gen != r.gen || r.userClosed {
		// A newer session or an explicit disconnect superseded this one.
		r.mu.Unlock()
		return
	}
	r.connected = false
	r.channel = nil
	r.stopSessionLocked()
	r.failPendingPingsLocked()
	r.mu.Unlock()

	ch.Close()

	r.logger.Warn("session lost",
		"code", reason.Code,
		"reason", reason.Message,
		"server_initiated", reason.ServerInitiated,
	)
	r.bus.Emit(TopicDisconnect, reason)

	if reason.Terminal() {
		return
	}

	r.mu.Lock()
	r.reconnecting = true
	r.mu.Unlock()

	r.reconnectLoop()

	r.mu.Lock()
	r.reconnecting = false
	r.mu.Unlock()
}

// reconnectLoop retries until success, cancellation, or an exhausted
// attempt budget.
func (r *Runtime) reconnectLoop() {
	for {
		r.mu.Lock()
		closed := r.userClosed
		manual := r.attempt != nil
		r.mu.Unlock()
		if closed || manual {
			// An explicit disconnect or connect owns the state now.
			return
		}

		if !r.recon.CanReconnect() {
			r.logger.Error("reconnect budget exhausted",
				"attempts", r.recon.Attempts(),
			)
			r.bus.Emit(TopicReconnectFailed, ErrReconnectExhausted)
			return
		}

		r.bus.Emit(TopicReconnectAttempt, r.recon.Attempts()+1)

		ok, err := r.recon.AttemptReconnect(context.Background(), r.openSession)
		if ok {
			r.bus.Emit(TopicReconnect, nil)
			return
		}
		if errors.Is(err, ErrReconnectCancelled) || errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, ErrReconnectExhausted) {
			continue // surfaced as reconnect_failed at the top of the loop
		}

		r.logger.Warn("reconnect attempt failed", "error", err)
		r.bus.Emit(TopicReconnectError, err)
	}
}

// heartbeatLoop sends a liveness ping every interval while the session
// is up. The matching pong updates the latency metric.
func (r *Runtime) heartbeatLoop(ch Channel, stop chan struct{}) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			payload := pingPayload{ID: uuid.NewString(), SentAt: time.Now().UnixNano()}
			if err := ch.Send(TopicPing, payload); err != nil {
				r.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// stopSessionLocked stops the session and heartbeat goroutines. Caller
// must hold r.mu.
func (r *Runtime) stopSessionLocked() {
	if r.sessionStop != nil {
		close(r.sessionStop)
		r.sessionStop = nil
	}
}

// failPendingPingsLocked rejects in-flight pings. Caller must hold r.mu.
func (r *Runtime) failPendingPingsLocked() {
	for id, resp := range r.pendingPings {
		close(resp)
		delete(r.pendingPings, id)
	}
}

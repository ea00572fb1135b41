package connection

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/tidewave/realtime/internal/eventbus"
)

// Errors
var (
	ErrNoToken            = errors.New("no auth token available")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectTimeout     = errors.New("connect timeout")
	ErrPingTimeout        = errors.New("ping timeout")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrReconnectCancelled = errors.New("reconnect cancelled")
	ErrAlreadyClosed      = errors.New("already closed")
)

// State is the runtime's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Lifecycle topics emitted by the runtime onto the event bus.
const (
	TopicConnect          eventbus.Topic = "connect"
	TopicDisconnect       eventbus.Topic = "disconnect"
	TopicError            eventbus.Topic = "error"
	TopicReconnectAttempt eventbus.Topic = "reconnect_attempt"
	TopicReconnect        eventbus.Topic = "reconnect"
	TopicReconnectError   eventbus.Topic = "reconnect_error"
	TopicReconnectFailed  eventbus.Topic = "reconnect_failed"
)

// Application topics carried over the channel.
const (
	TopicChatMessage eventbus.Topic = "chat:message"
	TopicMessageRead eventbus.Topic = "chat:read"
	TopicTyping      eventbus.Topic = "chat:typing"
	TopicPresence    eventbus.Topic = "presence"

	// heartbeat wire topics, handled by the runtime itself
	TopicPing eventbus.Topic = "ping"
	TopicPong eventbus.Topic = "pong"
)

// Inbound is a named event delivered by the channel. The runtime routes
// Data without interpreting it.
type Inbound struct {
	Topic      eventbus.Topic
	Data       json.RawMessage
	ReceivedAt time.Time
}

// DisconnectReason describes why the channel closed.
type DisconnectReason struct {
	Code            int    // close code if the peer sent a close frame
	Message         string // close message or error text
	ServerInitiated bool   // true when the server deliberately ended the session
	Err             error  // underlying transport error, if any
}

// Terminal reports whether the runtime should stop reconnecting. A
// server-initiated close means the session was explicitly ended (most
// likely an invalid or expired credential); retrying would loop.
func (r DisconnectReason) Terminal() bool {
	return r.ServerInitiated
}

// QueuedMessage is an outbound payload buffered while disconnected.
type QueuedMessage struct {
	Topic      eventbus.Topic
	Payload    any
	EnqueuedAt time.Time
}

// Metrics is a snapshot of runtime observability fields.
type Metrics struct {
	Connected         bool
	Latency           time.Duration
	QueueSize         int
	ReconnectAttempts int
	CanReconnect      bool
}

// pingPayload is the heartbeat wire format. The server echoes it back
// verbatim on the pong topic.
type pingPayload struct {
	ID     string `json:"id"`
	SentAt int64  `json:"sent_at"` // UnixNano at send time
}

// AuthPayload carries the handshake credential.
type AuthPayload struct {
	Token string
}

// TokenSource supplies the current credential for the connection
// handshake. An empty token means no credential is available.
type TokenSource interface {
	Token() string
}

// Config configures the connection runtime.
type Config struct {
	MaxReconnectAttempts int           // attempt budget before reconnect_failed
	ReconnectBaseDelay   time.Duration // initial backoff delay
	ReconnectMaxDelay    time.Duration // backoff ceiling
	QueueMaxSize         int           // outbound queue capacity
	QueueMaxAge          time.Duration // outbound queue entry lifetime
	HeartbeatInterval    time.Duration // periodic liveness ping interval
	ConnectTimeout       time.Duration // max time waiting for the channel to open
	PingTimeout          time.Duration // timeout for a manual Ping round-trip

	// DropWhenDisconnected lists high-frequency topics that are never
	// queued: a stale typing signal delivered late is actively
	// misleading, so dropping is the correct outcome.
	DropWhenDisconnected []eventbus.Topic
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		QueueMaxSize:         100,
		QueueMaxAge:          5 * time.Minute,
		HeartbeatInterval:    25 * time.Second,
		ConnectTimeout:       10 * time.Second,
		PingTimeout:          5 * time.Second,
		DropWhenDisconnected: []eventbus.Topic{TopicTyping},
	}
}

// WebsocketConfig configures the websocket channel implementation.
type WebsocketConfig struct {
	URL              string        // e.g. wss://rt.example.com/socket
	HandshakeTimeout time.Duration // dial deadline
	WriteTimeout     time.Duration // write deadline per frame
	InboundBuffer    int           // inbound event channel buffer size
}

// DefaultWebsocketConfig returns sensible defaults.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		InboundBuffer:    1000,
	}
}

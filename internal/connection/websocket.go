package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tidewave/realtime/internal/eventbus"
)

// frame is the wire envelope for named events.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsChannel implements Channel over a websocket connection.
type wsChannel struct {
	cfg    WebsocketConfig
	logger *slog.Logger

	conn *websocket.Conn

	inbound     chan Inbound
	disconnects chan DisconnectReason
	done        chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.RWMutex
	opened bool
	closed bool
}

// NewWebsocketChannel creates an unopened websocket channel.
func NewWebsocketChannel(cfg WebsocketConfig, logger *slog.Logger) Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultWebsocketConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWebsocketConfig().WriteTimeout
	}
	if cfg.InboundBuffer == 0 {
		cfg.InboundBuffer = DefaultWebsocketConfig().InboundBuffer
	}

	return &wsChannel{
		cfg:         cfg,
		logger:      logger,
		inbound:     make(chan Inbound, cfg.InboundBuffer),
		disconnects: make(chan DisconnectReason, 1),
		done:        make(chan struct{}),
	}
}

// Open dials the websocket endpoint with the credential in the
// Authorization header and starts the read loop.
func (c *wsChannel) Open(ctx context.Context, auth AuthPayload) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if auth.Token != "" {
		header.Set("Authorization", "Bearer "+auth.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.opened = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket opened", "url", c.cfg.URL)

	return nil
}

// Close tears the connection down. Idempotent; suppresses the disconnect
// notification for this deliberate local close.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.opened = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send writes one named event.
func (c *wsChannel) Send(topic eventbus.Topic, payload any) error {
	c.mu.RLock()
	if !c.opened {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	msg, err := json.Marshal(frame{Event: string(topic), Data: data})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Inbound returns the inbound event channel.
func (c *wsChannel) Inbound() <-chan Inbound {
	return c.inbound
}

// Disconnects returns the disconnect notification channel.
func (c *wsChannel) Disconnects() <-chan DisconnectReason {
	return c.disconnects
}

// readLoop reads frames until the connection dies, then classifies and
// reports the disconnect.
func (c *wsChannel) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.mu.Lock()
			c.opened = false
			c.mu.Unlock()

			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}

			c.disconnects <- classifyClose(err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed frame, dropping", "error", err)
			continue
		}
		if f.Event == "" {
			c.logger.Warn("frame without event name, dropping")
			continue
		}

		in := Inbound{
			Topic:      eventbus.Topic(f.Event),
			Data:       f.Data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.inbound <- in:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping event", "topic", f.Event)
		}
	}
}

// classifyClose maps a read error to a disconnect reason. A close frame
// from the server (normal closure or policy violation) means the server
// deliberately ended the session; anything else is network loss.
func classifyClose(err error) DisconnectReason {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		serverInitiated := closeErr.Code == websocket.CloseNormalClosure ||
			closeErr.Code == websocket.ClosePolicyViolation
		return DisconnectReason{
			Code:            closeErr.Code,
			Message:         closeErr.Text,
			ServerInitiated: serverInitiated,
			Err:             err,
		}
	}
	return DisconnectReason{
		Message: err.Error(),
		Err:     err,
	}
}

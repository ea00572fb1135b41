package connection

import (
	"context"

	"github.com/tidewave/realtime/internal/eventbus"
)

// Channel is the opaque bidirectional, message-framed transport the
// runtime drives. One Channel carries at most one session: after it
// reports a disconnect or is closed, the runtime opens a fresh instance.
type Channel interface {
	// Open establishes the transport, blocking until it is usable or
	// ctx expires.
	Open(ctx context.Context, auth AuthPayload) error

	// Send writes one named event to the transport.
	Send(topic eventbus.Topic, payload any) error

	// Close tears the transport down. Closing suppresses the disconnect
	// notification: a deliberate local close is not a session loss.
	Close() error

	// Inbound delivers named events from the server.
	Inbound() <-chan Inbound

	// Disconnects delivers at most one notification when the session is
	// lost for any reason other than a local Close.
	Disconnects() <-chan DisconnectReason
}

// ChannelFactory produces a fresh Channel for each connect attempt.
type ChannelFactory func() Channel

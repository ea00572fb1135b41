package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultInboundBuffer        = 1000
	DefaultReconnectMaxAttempts = 10
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultQueueMaxSize         = 100
	DefaultQueueMaxAge          = 5 * time.Minute
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultPingTimeout          = 5 * time.Second
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.InboundBuffer == 0 {
		c.Server.InboundBuffer = DefaultInboundBuffer
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}

	// Queue defaults
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = DefaultQueueMaxSize
	}
	if c.Queue.MaxAge == 0 {
		c.Queue.MaxAge = DefaultQueueMaxAge
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if c.Heartbeat.PingTimeout == 0 {
		c.Heartbeat.PingTimeout = DefaultPingTimeout
	}
}

// Package config loads and validates the runtime configuration.
package config

import "time"

// Config is the top-level configuration for a realtime client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Queue     QueueConfig     `yaml:"queue"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// ServerConfig locates the realtime endpoint and its credential.
type ServerConfig struct {
	URL              string        `yaml:"url"`               // e.g. wss://rt.example.com/socket
	Token            string        `yaml:"token"`             // supports ${ENV} expansion
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`   // max wait for the channel to open
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // websocket dial deadline
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // per-frame write deadline
	InboundBuffer    int           `yaml:"inbound_buffer"`    // inbound event buffer size
}

// ReconnectConfig bounds the automatic reconnection policy.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// QueueConfig bounds the outbound queue for sends made while
// disconnected.
type QueueConfig struct {
	MaxSize int           `yaml:"max_size"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// HeartbeatConfig controls liveness probing.
type HeartbeatConfig struct {
	Interval    time.Duration `yaml:"interval"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

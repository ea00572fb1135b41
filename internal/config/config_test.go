package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  url: wss://rt.example.com/socket
  token: abc123
  connect_timeout: 3s
reconnect:
  max_attempts: 5
  base_delay: 500ms
  max_delay: 20s
queue:
  max_size: 50
  max_age: 2m
heartbeat:
  interval: 10s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "wss://rt.example.com/socket" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "wss://rt.example.com/socket")
	}
	if cfg.Server.Token != "abc123" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "abc123")
	}
	if cfg.Server.ConnectTimeout != 3*time.Second {
		t.Errorf("Server.ConnectTimeout = %v, want 3s", cfg.Server.ConnectTimeout)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Queue.MaxAge != 2*time.Minute {
		t.Errorf("Queue.MaxAge = %v, want 2m", cfg.Queue.MaxAge)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_RT_TOKEN", "secret123")

	yaml := `
server:
  url: wss://rt.example.com/socket
  token: ${TEST_RT_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Token != "secret123" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
server:
  url: wss://rt.example.com/socket
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Server.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Server.ConnectTimeout = %v, want default %v", cfg.Server.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Reconnect.MaxAttempts != DefaultReconnectMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, DefaultReconnectMaxAttempts)
	}
	if cfg.Reconnect.MaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default %v", cfg.Reconnect.MaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Queue.MaxSize != DefaultQueueMaxSize {
		t.Errorf("Queue.MaxSize = %d, want default %d", cfg.Queue.MaxSize, DefaultQueueMaxSize)
	}
	if cfg.Heartbeat.Interval != DefaultHeartbeatInterval {
		t.Errorf("Heartbeat.Interval = %v, want default %v", cfg.Heartbeat.Interval, DefaultHeartbeatInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{URL: "wss://rt.example.com/socket"},
			Reconnect: ReconnectConfig{
				MaxAttempts: 5,
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
			},
			Queue:     QueueConfig{MaxSize: 100, MaxAge: 5 * time.Minute},
			Heartbeat: HeartbeatConfig{Interval: 25 * time.Second, PingTimeout: 5 * time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "server.url is required",
		},
		{
			name:    "non-websocket url",
			mutate:  func(c *Config) { c.Server.URL = "https://rt.example.com" },
			wantErr: `server.url must be a ws:// or wss:// URL, got "https://rt.example.com"`,
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Reconnect.MaxAttempts = 0 },
			wantErr: "reconnect.max_attempts must be >= 1",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.Reconnect.MaxDelay = 100 * time.Millisecond },
			wantErr: "reconnect.max_delay (100ms) cannot be less than base_delay (1s)",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Queue.MaxSize = 0 },
			wantErr: "queue.max_size must be >= 1",
		},
		{
			name:    "zero heartbeat interval",
			mutate:  func(c *Config) { c.Heartbeat.Interval = 0 },
			wantErr: "heartbeat.interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

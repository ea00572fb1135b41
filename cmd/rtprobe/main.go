// rtprobe connects to a realtime endpoint and streams received events to
// the console.
// Usage: go run ./cmd/rtprobe --config configs/client.local.yaml
//
// The auth token may be supplied in the config file directly or through
// environment substitution (e.g. token: ${REALTIME_TOKEN}).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidewave/realtime/internal/config"
	"github.com/tidewave/realtime/internal/connection"
	"github.com/tidewave/realtime/internal/eventbus"
	"github.com/tidewave/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rtprobe", version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	wsCfg := connection.WebsocketConfig{
		URL:              cfg.Server.URL,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		InboundBuffer:    cfg.Server.InboundBuffer,
	}

	runtime := connection.New(
		connection.Config{
			MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
			ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
			ReconnectMaxDelay:    cfg.Reconnect.MaxDelay,
			QueueMaxSize:         cfg.Queue.MaxSize,
			QueueMaxAge:          cfg.Queue.MaxAge,
			HeartbeatInterval:    cfg.Heartbeat.Interval,
			ConnectTimeout:       cfg.Server.ConnectTimeout,
			PingTimeout:          cfg.Heartbeat.PingTimeout,
		},
		connection.NewStaticTokenSource(cfg.Server.Token),
		func() connection.Channel {
			return connection.NewWebsocketChannel(wsCfg, logger)
		},
		eventbus.New(logger),
		logger,
	)

	// Lifecycle events
	for _, topic := range []eventbus.Topic{
		connection.TopicConnect,
		connection.TopicDisconnect,
		connection.TopicReconnect,
		connection.TopicReconnectFailed,
	} {
		topic := topic
		runtime.Subscribe(topic, func(payload any) {
			logger.Info("lifecycle event", "topic", topic, "payload", payload)
		}, eventbus.SubscribeOptions{})
	}

	// Chat messages batched to keep console output readable under load.
	runtime.Subscribe(connection.TopicChatMessage, func(payload any) {
		batch := payload.([]any)
		logger.Info("chat messages", "count", len(batch))
		if *verbose {
			for _, msg := range batch {
				logger.Debug("chat message", "payload", msg)
			}
		}
	}, eventbus.SubscribeOptions{
		Batched:    true,
		BatchSize:  20,
		BatchDelay: 500 * time.Millisecond,
	})

	// Typing indicators throttled: only the latest signal per window
	// matters.
	runtime.Subscribe(connection.TopicTyping, func(payload any) {
		logger.Info("typing", "payload", payload)
	}, eventbus.SubscribeOptions{
		Throttled:     true,
		ThrottleDelay: time.Second,
	})

	runtime.Subscribe(connection.TopicPresence, func(payload any) {
		logger.Info("presence", "payload", payload)
	}, eventbus.SubscribeOptions{})

	logger.Info("connecting", "url", cfg.Server.URL)
	if err := runtime.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	// Periodic metrics report
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			runtime.Disconnect()
			logger.Info("shutdown complete")
			return
		case <-ticker.C:
			m := runtime.Metrics()
			logger.Info("metrics",
				"connected", m.Connected,
				"latency", m.Latency,
				"queue_size", m.QueueSize,
				"reconnect_attempts", m.ReconnectAttempts,
				"can_reconnect", m.CanReconnect,
			)

			if m.Connected {
				pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
				if rtt, err := runtime.Ping(pingCtx); err == nil {
					logger.Debug("ping", "rtt", rtt)
				}
				pingCancel()
			}
		}
	}
}

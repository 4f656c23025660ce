// streamtest connects to the signal backend's live channel and prints parsed
// messages to the console.
// Usage: go run ./cmd/streamtest --config configs/signalwatch.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osalah/signalfeed/internal/api"
	"github.com/osalah/signalfeed/internal/config"
	"github.com/osalah/signalfeed/internal/realtime"
)

func main() {
	configPath := flag.String("config", "configs/signalwatch.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
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

	// REST client for the fallback poller
	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.APIKey, api.WithLogger(logger))

	rtClient := realtime.NewClient(realtime.Config{
		URL:                  cfg.API.WSURL,
		APIKey:               cfg.API.APIKey,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		PingInterval:         cfg.Realtime.PingInterval,
		PongTimeout:          cfg.Realtime.PongTimeout,
		PollInterval:         cfg.Realtime.PollInterval,
		Poll: func(ctx context.Context) (realtime.Message, error) {
			snap, err := apiClient.GetRegimeSummaryRealtime(ctx)
			if err != nil {
				return realtime.Message{}, err
			}
			raw, _ := json.Marshal(map[string]any{"data": snap})
			msg := realtime.Message{
				Type:       realtime.TagRegimeUpdate,
				Data:       raw,
				ReceivedAt: time.Now(),
			}
			if snap.AsOfTS != 0 {
				msg.Timestamp = time.UnixMicro(snap.AsOfTS).UTC().Format(time.RFC3339Nano)
			}
			return msg, nil
		},
		OnStateChange: func(old, next realtime.ConnectionState) {
			fmt.Printf("[STATE] %s -> %s\n", old, next)
		},
	}, logger)

	// Print every tag the backend emits
	tags := []string{
		realtime.TagInitialData,
		realtime.TagRegimeUpdate,
		realtime.TagMarketDataUpdate,
		realtime.TagIntradayUpdate,
		realtime.TagSignalGenerated,
		realtime.TagTargetHit,
		realtime.TagStopLossHit,
		realtime.TagSignalsCleared,
	}
	for _, tag := range tags {
		tag := tag
		rtClient.Subscribe(tag, func(msg realtime.Message) {
			if *verbose {
				data, _ := json.MarshalIndent(json.RawMessage(msg.Data), "", "  ")
				fmt.Printf("[%s] %s\n", tag, data)
			} else {
				fmt.Printf("[%s] ts=%s bytes=%d\n", tag, msg.Timestamp, len(msg.Data))
			}
		})
	}

	logger.Info("connecting", "ws_url", cfg.API.WSURL)
	if err := rtClient.Connect(ctx); err != nil {
		logger.Warn("initial dial failed, reconnecting", "error", err)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := rtClient.Stats()
				logger.Info("stats",
					"state", rtClient.State(),
					"dispatched", stats.Dispatched,
					"reconnects", stats.Reconnects,
					"missed_pongs", stats.MissedPongs,
					"poll_cycles", stats.PollCycles,
					"dropped_frames", stats.DroppedFrames,
					"unknown_tags", stats.UnknownTags,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	rtClient.Disconnect()

	logger.Info("shutdown complete")
}

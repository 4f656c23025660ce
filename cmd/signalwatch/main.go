package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/osalah/signalfeed/internal/api"
	"github.com/osalah/signalfeed/internal/config"
	"github.com/osalah/signalfeed/internal/database"
	"github.com/osalah/signalfeed/internal/metrics"
	"github.com/osalah/signalfeed/internal/model"
	"github.com/osalah/signalfeed/internal/realtime"
	"github.com/osalah/signalfeed/internal/version"
	"github.com/osalah/signalfeed/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/signalwatch.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting signalwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"ws_url", cfg.API.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create API client
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Probe the backend before opening the live channel
	summary, err := apiClient.GetRegimeSummary(ctx)
	if err != nil {
		logger.Error("failed to fetch regime summary", "error", err)
		os.Exit(1)
	}
	logger.Info("backend reachable",
		"regime", summary.Regime,
		"confidence", summary.Confidence,
	)

	// Buffers between the live channel and the writers
	eventBuf := writer.NewGrowableBuffer[model.SignalEvent](cfg.Writers.BufferSize)
	regimeBuf := writer.NewGrowableBuffer[model.RegimeSnapshot](cfg.Writers.BufferSize)

	// Batch writers
	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	eventWriter := writer.NewSignalEventWriter(writerCfg, eventBuf, pool, logger)
	regimeWriter := writer.NewRegimeWriter(writerCfg, regimeBuf, pool, logger)

	if err := eventWriter.Start(ctx); err != nil {
		logger.Error("failed to start signal event writer", "error", err)
		os.Exit(1)
	}
	if err := regimeWriter.Start(ctx); err != nil {
		logger.Error("failed to start regime writer", "error", err)
		os.Exit(1)
	}

	// Live channel client with REST fallback polling
	rtCfg := realtime.Config{
		URL:                  cfg.API.WSURL,
		APIKey:               cfg.API.APIKey,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		PingInterval:         cfg.Realtime.PingInterval,
		PongTimeout:          cfg.Realtime.PongTimeout,
		PollInterval:         cfg.Realtime.PollInterval,
		Poll:                 regimePollFunc(apiClient),
		OnStateChange: func(old, next realtime.ConnectionState) {
			metrics.SetConnectionState(string(next))
		},
	}
	rtClient := realtime.NewClient(rtCfg, logger)

	registerSubscribers(rtClient, eventBuf, regimeBuf, logger)

	if err := rtClient.Connect(ctx); err != nil {
		// Reconnect machinery is already running; log and carry on.
		logger.Warn("initial live channel dial failed", "error", err)
	}

	// Health and metrics server
	healthPort := 8080
	if cfg.Metrics.Port > 0 {
		healthPort = cfg.Metrics.Port
	}
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(pool, rtClient, metricsPath),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort, "metrics_path", metricsPath)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("signalwatch running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	rtClient.Disconnect()
	eventBuf.Close()
	regimeBuf.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := eventWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("signal event writer stop error", "error", err)
	}
	if err := regimeWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("regime writer stop error", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("signalwatch stopped")
}

// signalEventFrame is the payload shape shared by the signal lifecycle tags.
type signalEventFrame struct {
	Data struct {
		SignalID string  `json:"signal_id"`
		Symbol   string  `json:"symbol"`
		Price    float64 `json:"price"`
	} `json:"data"`
}

// regimeFrame is the payload shape of regime_update and initial_data frames.
type regimeFrame struct {
	Data model.RegimeSnapshot `json:"data"`
}

// registerSubscribers bridges decoded live-channel messages into the writer
// buffers.
func registerSubscribers(
	rt *realtime.Client,
	eventBuf *writer.GrowableBuffer[model.SignalEvent],
	regimeBuf *writer.GrowableBuffer[model.RegimeSnapshot],
	logger *slog.Logger,
) {
	onRegime := func(msg realtime.Message) {
		var frame regimeFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			logger.Warn("bad regime payload", "error", err)
			return
		}
		snap := frame.Data
		snap.AsOfTS = model.ParseEventTime(msg.Timestamp)
		snap.ReceivedAt = msg.ReceivedAt.UnixMicro()
		regimeBuf.Send(snap)
	}
	rt.Subscribe(realtime.TagRegimeUpdate, onRegime)
	rt.Subscribe(realtime.TagInitialData, onRegime)

	onSignalEvent := func(eventType model.SignalEventType) realtime.Handler {
		return func(msg realtime.Message) {
			var frame signalEventFrame
			if err := json.Unmarshal(msg.Data, &frame); err != nil {
				logger.Warn("bad signal event payload", "tag", msg.Type, "error", err)
				return
			}
			id, err := uuid.Parse(frame.Data.SignalID)
			if err != nil {
				id = uuid.Nil
			}
			eventBuf.Send(model.SignalEvent{
				EventType:  eventType,
				SignalID:   id,
				Symbol:     frame.Data.Symbol,
				Price:      frame.Data.Price,
				EventTS:    model.ParseEventTime(msg.Timestamp),
				ReceivedAt: msg.ReceivedAt.UnixMicro(),
			})
		}
	}
	rt.Subscribe(realtime.TagSignalGenerated, onSignalEvent(model.EventSignalGenerated))
	rt.Subscribe(realtime.TagTargetHit, onSignalEvent(model.EventTargetHit))
	rt.Subscribe(realtime.TagStopLossHit, onSignalEvent(model.EventStopLossHit))
	rt.Subscribe(realtime.TagSignalsCleared, onSignalEvent(model.EventSignalsCleared))
}

// regimePollFunc adapts the REST regime summary into the live-channel message
// shape so downstream subscribers see the same frames, with the same backend
// timestamp, while polling.
func regimePollFunc(apiClient *api.Client) realtime.PollFunc {
	return func(ctx context.Context) (realtime.Message, error) {
		snap, err := apiClient.GetRegimeSummaryRealtime(ctx)
		if err != nil {
			return realtime.Message{}, err
		}
		raw, err := json.Marshal(regimeFrame{Data: *snap})
		if err != nil {
			return realtime.Message{}, err
		}
		msg := realtime.Message{
			Type:       realtime.TagRegimeUpdate,
			Data:       raw,
			ReceivedAt: time.Now(),
		}
		if snap.AsOfTS != 0 {
			msg.Timestamp = time.UnixMicro(snap.AsOfTS).UTC().Format(time.RFC3339Nano)
		}
		return msg, nil
	}
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(pool interface{ Ping(context.Context) error }, rt *realtime.Client, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check live channel
		state := rt.State()
		health.Components["live_channel"] = map[string]interface{}{
			"state":       string(state),
			"last_update": rt.LastUpdate().Format(time.RFC3339),
		}
		if state == realtime.StateError {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rt.Stats())
	})

	mux.Handle(metricsPath, metrics.Handler())

	return mux
}

package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osalah/signalfeed/internal/metrics"
	"github.com/osalah/signalfeed/internal/model"
)

// RegimeWriter consumes RegimeSnapshot from its buffer and writes to the
// regime_updates table.
type RegimeWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the live-channel subscriber
	input *GrowableBuffer[model.RegimeSnapshot]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []regimeRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewRegimeWriter creates a new RegimeWriter.
func NewRegimeWriter(
	cfg WriterConfig,
	input *GrowableBuffer[model.RegimeSnapshot],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *RegimeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegimeWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]regimeRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming snapshots and writing to the database.
func (w *RegimeWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("regime writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *RegimeWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping regime writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("regime writer stopped")
	case <-ctx.Done():
		w.logger.Warn("regime writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *RegimeWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *RegimeWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			snap, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleSnapshot(snap)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *RegimeWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleSnapshot transforms and adds a snapshot to the batch.
func (w *RegimeWriter) handleSnapshot(snap model.RegimeSnapshot) {
	row := w.transform(snap)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a RegimeSnapshot to a regimeRow.
func (w *RegimeWriter) transform(snap model.RegimeSnapshot) regimeRow {
	receivedAt := snap.ReceivedAt
	if receivedAt == 0 {
		receivedAt = model.MicrosNow()
	}
	return regimeRow{
		Regime:          snap.Regime,
		Confidence:      snap.Confidence,
		VolatilityLevel: snap.VolatilityLevel,
		TrendStrength:   snap.TrendStrength,
		AsOfTs:          snap.AsOfTS,
		ReceivedAt:      receivedAt,
	}
}

// flush writes the current batch to the database.
func (w *RegimeWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]regimeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		metrics.WriterRows.WithLabelValues("regime_updates", "error").Add(float64(len(batch)))
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	metrics.WriterRows.WithLabelValues("regime_updates", "inserted").Add(float64(len(batch) - conflicts))
	metrics.WriterRows.WithLabelValues("regime_updates", "conflict").Add(float64(conflicts))
	metrics.WriterFlushes.WithLabelValues("regime_updates").Inc()

	w.logger.Debug("flushed regime updates",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *RegimeWriter) batchInsert(rows []regimeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO regime_updates (regime, confidence, volatility_level, trend_strength, as_of_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (regime, as_of_ts) DO NOTHING
		`, r.Regime, r.Confidence, r.VolatilityLevel, r.TrendStrength, r.AsOfTs, r.ReceivedAt)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

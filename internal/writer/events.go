package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osalah/signalfeed/internal/metrics"
	"github.com/osalah/signalfeed/internal/model"
)

// SignalEventWriter consumes SignalEvent from its buffer and writes to the
// signal_events table.
type SignalEventWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the live-channel subscriber
	input *GrowableBuffer[model.SignalEvent]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []signalEventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewSignalEventWriter creates a new SignalEventWriter.
func NewSignalEventWriter(
	cfg WriterConfig,
	input *GrowableBuffer[model.SignalEvent],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *SignalEventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalEventWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]signalEventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *SignalEventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("signal event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *SignalEventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping signal event writer")

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
		w.logger.Info("signal event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("signal event writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *SignalEventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *SignalEventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			ev, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *SignalEventWriter) flushLoop() {
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

// handleEvent transforms and adds an event to the batch.
func (w *SignalEventWriter) handleEvent(ev model.SignalEvent) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a SignalEvent to a signalEventRow.
func (w *SignalEventWriter) transform(ev model.SignalEvent) signalEventRow {
	id := ""
	if ev.SignalID != uuid.Nil {
		id = ev.SignalID.String()
	}
	receivedAt := ev.ReceivedAt
	if receivedAt == 0 {
		receivedAt = model.MicrosNow()
	}
	return signalEventRow{
		EventType:  string(ev.EventType),
		SignalID:   id,
		Symbol:     ev.Symbol,
		Price:      ev.Price,
		EventTs:    ev.EventTS,
		ReceivedAt: receivedAt,
	}
}

// flush writes the current batch to the database.
func (w *SignalEventWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]signalEventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		metrics.WriterRows.WithLabelValues("signal_events", "error").Add(float64(len(batch)))
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	metrics.WriterRows.WithLabelValues("signal_events", "inserted").Add(float64(len(batch) - conflicts))
	metrics.WriterRows.WithLabelValues("signal_events", "conflict").Add(float64(conflicts))
	metrics.WriterFlushes.WithLabelValues("signal_events").Inc()

	w.logger.Debug("flushed signal events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *SignalEventWriter) batchInsert(rows []signalEventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var signalID any
		if r.SignalID != "" {
			signalID = r.SignalID
		}
		batch.Queue(`
			INSERT INTO signal_events (event_type, signal_id, symbol, price, event_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_type, signal_id, event_ts) DO NOTHING
		`, r.EventType, signalID, r.Symbol, r.Price, r.EventTs, r.ReceivedAt)
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

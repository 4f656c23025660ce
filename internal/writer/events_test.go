package writer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/osalah/signalfeed/internal/model"
)

func TestSignalEventWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := NewGrowableBuffer[model.SignalEvent](10)
	w := NewSignalEventWriter(cfg, input, nil, nil)

	id := uuid.MustParse("9f1c7be2-43c0-4a1c-8f2e-6c2d6c1a0b42")
	ev := model.SignalEvent{
		EventType:  model.EventTargetHit,
		SignalID:   id,
		Symbol:     "BTC-USD",
		Price:      71250.5,
		EventTS:    1705320000000000,
		ReceivedAt: 1705320000123456,
	}

	row := w.transform(ev)

	if row.EventType != "target_hit" {
		t.Errorf("EventType = %s, want target_hit", row.EventType)
	}
	if row.SignalID != id.String() {
		t.Errorf("SignalID = %s, want %s", row.SignalID, id)
	}
	if row.Symbol != "BTC-USD" {
		t.Errorf("Symbol = %s, want BTC-USD", row.Symbol)
	}
	if row.Price != 71250.5 {
		t.Errorf("Price = %f, want 71250.5", row.Price)
	}
	if row.EventTs != 1705320000000000 {
		t.Errorf("EventTs = %d, want 1705320000000000", row.EventTs)
	}
	if row.ReceivedAt != 1705320000123456 {
		t.Errorf("ReceivedAt = %d, want 1705320000123456", row.ReceivedAt)
	}
}

func TestSignalEventWriter_Transform_NilSignalID(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := NewGrowableBuffer[model.SignalEvent](10)
	w := NewSignalEventWriter(cfg, input, nil, nil)

	ev := model.SignalEvent{
		EventType: model.EventSignalsCleared,
		EventTS:   1705320000000000,
	}

	row := w.transform(ev)

	if row.SignalID != "" {
		t.Errorf("SignalID = %q, want empty for nil UUID", row.SignalID)
	}
	if row.ReceivedAt == 0 {
		t.Error("ReceivedAt should be filled in when zero")
	}
}

func TestSignalEventWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := NewGrowableBuffer[model.SignalEvent](10)

	w := NewSignalEventWriter(cfg, input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSignalEventWriter_HandleEvent_AddsToBatch(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	input := NewGrowableBuffer[model.SignalEvent](10)
	w := NewSignalEventWriter(cfg, input, nil, nil)

	ev := model.SignalEvent{
		EventType:  model.EventSignalGenerated,
		SignalID:   uuid.New(),
		Symbol:     "ETH-USD",
		ReceivedAt: model.MicrosNow(),
	}

	w.handleEvent(ev)

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestSignalEventWriter_Stats(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := NewGrowableBuffer[model.SignalEvent](10)
	w := NewSignalEventWriter(cfg, input, nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()

	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
}

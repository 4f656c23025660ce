package writer

import (
	"context"
	"testing"
	"time"

	"github.com/osalah/signalfeed/internal/model"
)

func TestRegimeWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := NewGrowableBuffer[model.RegimeSnapshot](10)
	w := NewRegimeWriter(cfg, input, nil, nil)

	snap := model.RegimeSnapshot{
		Regime:          "bull",
		Confidence:      0.82,
		VolatilityLevel: "low",
		TrendStrength:   0.65,
		AsOfTS:          1705320000000000,
		ReceivedAt:      1705320000123456,
	}

	row := w.transform(snap)

	if row.Regime != "bull" {
		t.Errorf("Regime = %s, want bull", row.Regime)
	}
	if row.Confidence != 0.82 {
		t.Errorf("Confidence = %f, want 0.82", row.Confidence)
	}
	if row.VolatilityLevel != "low" {
		t.Errorf("VolatilityLevel = %s, want low", row.VolatilityLevel)
	}
	if row.TrendStrength != 0.65 {
		t.Errorf("TrendStrength = %f, want 0.65", row.TrendStrength)
	}
	if row.AsOfTs != 1705320000000000 {
		t.Errorf("AsOfTs = %d, want 1705320000000000", row.AsOfTs)
	}
	if row.ReceivedAt != 1705320000123456 {
		t.Errorf("ReceivedAt = %d, want 1705320000123456", row.ReceivedAt)
	}
}

func TestRegimeWriter_Transform_MissingReceivedAt(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := NewGrowableBuffer[model.RegimeSnapshot](10)
	w := NewRegimeWriter(cfg, input, nil, nil)

	row := w.transform(model.RegimeSnapshot{Regime: "sideways"})

	if row.ReceivedAt == 0 {
		t.Error("ReceivedAt should be filled in when zero")
	}
}

func TestRegimeWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := NewGrowableBuffer[model.RegimeSnapshot](10)

	w := NewRegimeWriter(cfg, input, nil, nil)

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

func TestRegimeWriter_HandleSnapshot_FlushesAtBatchSize(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	input := NewGrowableBuffer[model.RegimeSnapshot](10)
	w := NewRegimeWriter(cfg, input, nil, nil)

	for i := 0; i < 3; i++ {
		w.handleSnapshot(model.RegimeSnapshot{Regime: "bear", ReceivedAt: model.MicrosNow()})
	}

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 3 {
		t.Errorf("batch length = %d, want 3", batchLen)
	}
}

package writer

import (
	"time"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// signalEventRow represents a row for the signal_events table.
type signalEventRow struct {
	EventType  string
	SignalID   string // UUID, empty string stored as NULL
	Symbol     string
	Price      float64
	EventTs    int64 // Microseconds
	ReceivedAt int64 // Microseconds
}

// regimeRow represents a row for the regime_updates table.
type regimeRow struct {
	Regime          string
	Confidence      float64
	VolatilityLevel string
	TrendStrength   float64
	AsOfTs          int64 // Microseconds
	ReceivedAt      int64 // Microseconds
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

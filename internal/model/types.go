package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Signal Types
// -----------------------------------------------------------------------------

// Signal represents a trading signal produced by the backend.
type Signal struct {
	ID          uuid.UUID `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"` // "long" or "short"
	EntryPrice  float64   `json:"entry_price"`
	Target      float64   `json:"target_price"`
	StopLoss    float64   `json:"stop_loss"`
	Confidence  float64   `json:"confidence"` // 0-1 model score
	Status      string    `json:"status"`     // active, target_hit, stopped_out, expired
	GeneratedTS int64     `json:"generated_ts"` // µs since epoch
}

// SignalEventType identifies a lifecycle event for a signal.
type SignalEventType string

const (
	EventSignalGenerated SignalEventType = "signal_generated"
	EventTargetHit       SignalEventType = "target_hit"
	EventStopLossHit     SignalEventType = "stop_loss_hit"
	EventSignalsCleared  SignalEventType = "signals_cleared"
)

// SignalEvent is a lifecycle notification for a signal, as received over the
// live channel.
type SignalEvent struct {
	EventType  SignalEventType // generated, target_hit, stop_loss_hit
	SignalID   uuid.UUID       // Subject signal (uuid.Nil for signals_cleared)
	Symbol     string
	Price      float64 // Price at which the event fired (0 for generated)
	EventTS    int64   // Backend timestamp (µs since epoch)
	ReceivedAt int64   // Local receive timestamp (µs since epoch)
}

// -----------------------------------------------------------------------------
// Market Regime Types
// -----------------------------------------------------------------------------

// RegimeSnapshot represents the backend's market-regime classification at a
// point in time.
type RegimeSnapshot struct {
	Regime          string  `json:"regime"`     // e.g. "bull", "bear", "sideways"
	Confidence      float64 `json:"confidence"` // 0-1 classifier score
	VolatilityLevel string  `json:"volatility_level,omitempty"`
	TrendStrength   float64 `json:"trend_strength,omitempty"`
	AsOfTS          int64   `json:"-"` // Backend timestamp (µs since epoch)
	ReceivedAt      int64   `json:"-"` // Local receive timestamp (µs since epoch)
}

// -----------------------------------------------------------------------------
// Position Sizing Types
// -----------------------------------------------------------------------------

// PositionSizeRequest asks the backend for a position-size recommendation.
type PositionSizeRequest struct {
	Symbol        string  `json:"symbol"`
	AccountEquity float64 `json:"account_equity"`
	EntryPrice    float64 `json:"entry_price"`
	StopLoss      float64 `json:"stop_loss"`
	RiskPercent   float64 `json:"risk_percent,omitempty"`
}

// PositionSizeResult is the backend's sizing recommendation.
type PositionSizeResult struct {
	Quantity      float64 `json:"quantity"`
	NotionalValue float64 `json:"notional_value"`
	RiskAmount    float64 `json:"risk_amount"`
	Method        string  `json:"method"` // e.g. "fixed_fractional", "kelly"
}

// MicrosNow returns the current time in microseconds since the Unix epoch.
func MicrosNow() int64 {
	return time.Now().UnixMicro()
}

// ParseEventTime converts an ISO-8601 timestamp from the backend to
// microseconds since epoch. Returns 0 for empty or unparseable input; events
// carry their own timestamps and a missing one is not fatal.
func ParseEventTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMicro()
}

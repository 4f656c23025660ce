package api

import (
	"encoding/json"
	"errors"
)

// ErrBackendFailure indicates a 2xx response whose envelope reported
// success=false.
var ErrBackendFailure = errors.New("backend reported failure")

// envelope is the standard response wrapper used by the signal backend.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// regimeSummaryWire is the data field of /market-regime/summary responses.
type regimeSummaryWire struct {
	Regime          string  `json:"regime"`
	Confidence      float64 `json:"confidence"`
	VolatilityLevel string  `json:"volatility_level"`
	TrendStrength   float64 `json:"trend_strength"`
	Timestamp       string  `json:"timestamp"`
}

// GenerateSignalsRequest asks the backend to run signal generation.
type GenerateSignalsRequest struct {
	Symbols   []string `json:"symbols"`
	Timeframe string   `json:"timeframe,omitempty"` // e.g. "1d", "4h"
}

package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osalah/signalfeed/internal/model"
)

// GetRegimeSummary fetches the current market-regime classification.
func (c *Client) GetRegimeSummary(ctx context.Context) (*model.RegimeSnapshot, error) {
	var env envelope
	if err := c.get(ctx, "/market-regime/summary", nil, &env); err != nil {
		return nil, fmt.Errorf("get regime summary: %w", err)
	}
	return decodeRegime(env)
}

// GetRegimeSummaryRealtime fetches the low-latency regime summary used by the
// fallback poller when the live channel is down.
func (c *Client) GetRegimeSummaryRealtime(ctx context.Context) (*model.RegimeSnapshot, error) {
	var env envelope
	if err := c.get(ctx, "/market-regime/summary-realtime", nil, &env); err != nil {
		return nil, fmt.Errorf("get realtime regime summary: %w", err)
	}
	return decodeRegime(env)
}

func decodeRegime(env envelope) (*model.RegimeSnapshot, error) {
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrBackendFailure, env.Error)
	}

	var wire regimeSummaryWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal regime data: %w", err)
	}

	return &model.RegimeSnapshot{
		Regime:          wire.Regime,
		Confidence:      wire.Confidence,
		VolatilityLevel: wire.VolatilityLevel,
		TrendStrength:   wire.TrendStrength,
		AsOfTS:          model.ParseEventTime(wire.Timestamp),
		ReceivedAt:      model.MicrosNow(),
	}, nil
}

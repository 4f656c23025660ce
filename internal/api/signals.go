package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osalah/signalfeed/internal/model"
)

// GenerateSignals asks the backend to produce signals for the given symbols.
func (c *Client) GenerateSignals(ctx context.Context, req GenerateSignalsRequest) ([]model.Signal, error) {
	var env envelope
	if err := c.post(ctx, "/signals/generate", req, &env); err != nil {
		return nil, fmt.Errorf("generate signals: %w", err)
	}
	return decodeSignals(env)
}

// GetActiveSignals fetches all currently active signals.
func (c *Client) GetActiveSignals(ctx context.Context) ([]model.Signal, error) {
	var env envelope
	if err := c.get(ctx, "/signals/active", nil, &env); err != nil {
		return nil, fmt.Errorf("get active signals: %w", err)
	}
	return decodeSignals(env)
}

func decodeSignals(env envelope) ([]model.Signal, error) {
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrBackendFailure, env.Error)
	}

	var signals []model.Signal
	if err := json.Unmarshal(env.Data, &signals); err != nil {
		return nil, fmt.Errorf("unmarshal signals: %w", err)
	}

	return signals, nil
}

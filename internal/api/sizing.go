package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osalah/signalfeed/internal/model"
)

// CalculatePositionSize asks the backend for a sizing recommendation.
func (c *Client) CalculatePositionSize(ctx context.Context, req model.PositionSizeRequest) (*model.PositionSizeResult, error) {
	var env envelope
	if err := c.post(ctx, "/position-sizing/calculate", req, &env); err != nil {
		return nil, fmt.Errorf("calculate position size: %w", err)
	}

	if !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrBackendFailure, env.Error)
	}

	var result model.PositionSizeResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal sizing result: %w", err)
	}

	return &result, nil
}

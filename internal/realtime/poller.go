package realtime

import (
	"context"
	"time"

	"github.com/osalah/signalfeed/internal/metrics"
)

// The fallback poller approximates the live channel with periodic REST
// polls once reconnect attempts are exhausted. Poll results flow through
// the same dispatcher, so subscribers never see which transport delivered
// a message. The poller runs only in the error state; a successful dial
// or a Disconnect cancels it synchronously.

// startPollerLocked activates degraded polling. Caller holds c.mu.
func (c *Client) startPollerLocked() {
	if c.cfg.Poll == nil || c.pollCancel != nil {
		return
	}

	ctx := c.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel

	go c.pollLoop(pctx)

	c.logger.Info("fallback poller started", "interval", c.cfg.PollInterval)
}

// stopPollerLocked cancels degraded polling. Caller holds c.mu.
func (c *Client) stopPollerLocked() {
	if c.pollCancel == nil {
		return
	}
	c.pollCancel()
	c.pollCancel = nil
	c.logger.Info("fallback poller stopped")
}

func (c *Client) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	// First snapshot immediately; the channel just went dark.
	c.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce fetches one snapshot and dispatches it. Failures are logged and
// the interval continues.
func (c *Client) pollOnce(ctx context.Context) {
	msg, err := c.cfg.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.pollErrors.Add(1)
		metrics.PollCycles.WithLabelValues("error").Inc()
		c.logger.Warn("fallback poll failed", "error", err)
		return
	}

	// Races favor the live channel: drop the result if polling was
	// cancelled while the request was in flight.
	if ctx.Err() != nil {
		return
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	c.pollCycles.Add(1)
	metrics.PollCycles.WithLabelValues("ok").Inc()
	c.lastUpdate.Store(msg.ReceivedAt.UnixMicro())
	c.dispatcher.Dispatch(msg)
}

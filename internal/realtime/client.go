package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osalah/signalfeed/internal/metrics"
)

// Client owns one live channel to the signal backend and its retry policy.
//
// A Client is created once per session scope and torn down with Disconnect.
// It is safe for concurrent use; subscribers are managed by the embedded
// dispatcher.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *Dispatcher

	// mu guards the state machine: state, attempt, generation, conn, and
	// all timers. Nothing outside the client mutates these.
	mu             sync.Mutex
	state          ConnectionState
	attempt        int
	generation     uint64
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	pongTimer      *time.Timer
	awaitingPong   bool
	pollCancel     context.CancelFunc
	baseCtx        context.Context

	// Write serialization (heartbeat and request_update share the socket)
	writeMu sync.Mutex

	lastUpdate atomic.Int64 // µs since epoch of the last data delivery

	reconnects  atomic.Int64
	missedPongs atomic.Int64
	pollCycles  atomic.Int64
	pollErrors  atomic.Int64
}

// outboundFrame is the shape of every frame the client sends.
type outboundFrame struct {
	Type string `json:"type"`
}

// NewClient creates a realtime client. The client does not connect until
// Connect is called.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Client{
		cfg:        cfg,
		logger:     logger,
		dispatcher: NewDispatcher(logger),
		state:      StateDisconnected,
	}
}

// Subscribe registers a callback for a message tag. The returned function
// removes exactly that registration.
func (c *Client) Subscribe(tag string, fn Handler) func() {
	return c.dispatcher.Subscribe(tag, fn)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the live channel is up.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// LastUpdate returns the time of the last successful data delivery, over
// either transport. Zero before any data has arrived.
func (c *Client) LastUpdate() time.Time {
	micros := c.lastUpdate.Load()
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros)
}

// Stats returns current counters.
func (c *Client) Stats() Stats {
	dispatched, dropped, unknown, panics := c.dispatcher.Stats()
	return Stats{
		Reconnects:    c.reconnects.Load(),
		MissedPongs:   c.missedPongs.Load(),
		PollCycles:    c.pollCycles.Load(),
		PollErrors:    c.pollErrors.Load(),
		Dispatched:    dispatched,
		DroppedFrames: dropped,
		UnknownTags:   unknown,
		HandlerPanics: panics,
	}
}

// Connect opens the live channel. A no-op when already connected or
// connecting. Any prior channel, timer, or poller is torn down first, so
// rapid Connect/Disconnect sequences never leak resources. A dial failure is
// returned to the caller but also schedules the reconnect path, so callers
// may treat the error as informational.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}

	c.teardownLocked()
	c.generation++
	gen := c.generation
	c.attempt = 0
	c.baseCtx = ctx
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// Disconnect closes the live channel with a normal close code and cancels
// the reconnect timer, the pong timer, and the fallback poller. Safe to call
// multiple times and from any state; Connect may be called again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.teardownLocked()
	c.attempt = 0
	c.setStateLocked(StateDisconnected)
}

// dial attempts to open the WebSocket for the given generation.
func (c *Client) dial(ctx context.Context, gen uint64) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)

	c.mu.Lock()
	if gen != c.generation {
		// A Disconnect or newer Connect superseded this dial.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}

	if err != nil {
		c.logger.Warn("dial failed", "url", c.cfg.URL, "error", err)
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		return err
	}

	c.conn = conn
	c.awaitingPong = false
	c.attempt = 0
	c.setStateLocked(StateConnected)
	c.stopPollerLocked()
	c.mu.Unlock()

	go c.readLoop(gen, conn)
	go c.heartbeatLoop(gen, conn)

	// Solicit the initial_data snapshot.
	if err := c.writeJSON(conn, outboundFrame{Type: "request_update"}); err != nil {
		c.logger.Debug("request_update send failed", "error", err)
	}

	c.logger.Info("live channel connected", "url", c.cfg.URL)
	return nil
}

// scheduleReconnectLocked advances the retry policy after a channel failure.
// Caller holds c.mu.
func (c *Client) scheduleReconnectLocked(gen uint64) {
	if c.attempt >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("reconnect attempts exhausted, degrading to polling",
			"attempts", c.attempt,
		)
		c.setStateLocked(StateError)
		c.startPollerLocked()
		return
	}

	delay := c.backoffDelay(c.attempt)
	c.attempt++
	c.reconnects.Add(1)
	metrics.Reconnects.Inc()
	c.setStateLocked(StateReconnecting)

	c.logger.Warn("scheduling reconnect",
		"attempt", c.attempt,
		"max_attempts", c.cfg.MaxReconnectAttempts,
		"delay", delay,
	)

	ctx := c.baseCtx
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.generation || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		c.dial(ctx, gen)
	})
}

// backoffDelay computes min(base * 2^attempt, cap).
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.ReconnectBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.ReconnectMaxDelay {
			return c.cfg.ReconnectMaxDelay
		}
	}
	return delay
}

// channelDown handles an abrupt loss of the given connection. No-op if a
// newer generation took over, a redial already replaced the connection, or
// the loss was already handled. The conn comparison is what keeps loops left
// over from a dead connection from tearing down its healthy successor.
func (c *Client) channelDown(gen uint64, conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.conn != conn || c.state != StateConnected {
		return
	}

	c.logger.Warn("live channel lost", "error", cause)
	c.stopPongTimerLocked()
	c.awaitingPong = false
	c.closeConnLocked()
	c.scheduleReconnectLocked(gen)
}

// readLoop reads frames until the connection dies or is superseded.
func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.channelDown(gen, conn, err)
			return
		}

		c.mu.Lock()
		stale := gen != c.generation || c.conn != conn
		c.mu.Unlock()
		if stale {
			return
		}

		msg, ok := c.dispatcher.Decode(data, receivedAt)
		if !ok {
			continue
		}

		if msg.Type == TagPong {
			c.pongReceived(gen, conn)
		}

		c.lastUpdate.Store(receivedAt.UnixMicro())
		c.dispatcher.Dispatch(msg)
	}
}

// heartbeatLoop sends application-level pings while connected.
func (c *Client) heartbeatLoop(gen uint64, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if gen != c.generation || c.conn != conn || c.state != StateConnected {
			c.mu.Unlock()
			return
		}
		if c.awaitingPong {
			// Previous ping still unanswered; the pong timer owns the
			// transition.
			c.mu.Unlock()
			continue
		}
		c.awaitingPong = true
		c.pongTimer = time.AfterFunc(c.cfg.PongTimeout, func() {
			c.pongTimedOut(gen, conn)
		})
		c.mu.Unlock()

		if err := c.writeJSON(conn, outboundFrame{Type: "ping"}); err != nil {
			c.channelDown(gen, conn, err)
			return
		}
	}
}

// pongReceived clears the heartbeat deadline.
func (c *Client) pongReceived(gen uint64, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.conn != conn {
		return
	}
	c.awaitingPong = false
	c.stopPongTimerLocked()
}

// pongTimedOut treats a missed pong as a channel close, exactly once.
func (c *Client) pongTimedOut(gen uint64, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.conn != conn || c.state != StateConnected || !c.awaitingPong {
		return
	}

	c.missedPongs.Add(1)
	metrics.MissedPongs.Inc()
	c.awaitingPong = false
	c.logger.Warn("forcing reconnect",
		"error", ErrMissedPong,
		"timeout", c.cfg.PongTimeout,
	)
	c.closeConnLocked()
	c.scheduleReconnectLocked(gen)
}

// writeJSON serializes and sends one frame with the configured deadline.
func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// setStateLocked transitions the state machine. Caller holds c.mu.
func (c *Client) setStateLocked(next ConnectionState) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(prev, next)
	}
}

// teardownLocked cancels every timer and closes the channel. Caller holds
// c.mu and has already (or is about to) move the generation forward.
func (c *Client) teardownLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopPongTimerLocked()
	c.awaitingPong = false
	c.stopPollerLocked()
	c.closeConnLocked()
}

func (c *Client) stopPongTimerLocked() {
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

// closeConnLocked sends a normal close and releases the socket.
func (c *Client) closeConnLocked() {
	if c.conn == nil {
		return
	}
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.conn.Close()
	c.conn = nil
}

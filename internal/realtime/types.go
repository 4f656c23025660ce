package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMissedPong reports a heartbeat that went unanswered past PongTimeout.
var ErrMissedPong = errors.New("connection stale (no pong)")

// ConnectionState describes the live channel's lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// Message tags delivered by the backend. Unknown tags are logged and dropped.
const (
	TagInitialData      = "initial_data"
	TagRegimeUpdate     = "regime_update"
	TagMarketDataUpdate = "market_data_update"
	TagIntradayUpdate   = "intraday_update"
	TagPong             = "pong"
	TagSignalGenerated  = "signal_generated"
	TagTargetHit        = "target_hit"
	TagStopLossHit      = "stop_loss_hit"
	TagSignalsCleared   = "signals_cleared"
)

var knownTags = map[string]struct{}{
	TagInitialData:      {},
	TagRegimeUpdate:     {},
	TagMarketDataUpdate: {},
	TagIntradayUpdate:   {},
	TagPong:             {},
	TagSignalGenerated:  {},
	TagTargetHit:        {},
	TagStopLossHit:      {},
	TagSignalsCleared:   {},
}

// Message is a decoded inbound frame. Data holds the complete frame so
// handlers can unmarshal whatever payload shape their tag carries.
type Message struct {
	Type       string    // Tag used for routing
	Timestamp  string    // Backend timestamp (ISO-8601, may be empty)
	Data       json.RawMessage
	ReceivedAt time.Time // Local receive time
}

// messageEnvelope extracts the routing fields from a raw frame.
type messageEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Handler is a subscriber callback for one message tag.
type Handler func(Message)

// PollFunc fetches a fallback snapshot over REST and translates it into the
// inbound message shape. Used only while the live channel is in the error
// state.
type PollFunc func(context.Context) (Message, error)

// Config configures a realtime Client.
type Config struct {
	URL    string // WebSocket URL (e.g. ws://backend:8000/ws/market-regime)
	APIKey string // Bearer token for the dial handshake (empty = no auth)

	ReconnectBaseDelay   time.Duration // First retry delay; doubles per attempt
	ReconnectMaxDelay    time.Duration // Backoff cap
	MaxReconnectAttempts int           // Attempts before giving up and polling

	PingInterval time.Duration // Application-level ping cadence while connected
	PongTimeout  time.Duration // Max wait for a pong before forcing reconnect

	PollInterval     time.Duration // Fallback poll cadence (error state only)
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Poll supplies fallback snapshots while the live channel is down.
	// Nil disables the fallback poller.
	Poll PollFunc

	// OnStateChange, if set, is invoked on every state transition. It runs
	// synchronously inside the client's critical section and must not call
	// back into the client; both states are passed so it never needs to.
	OnStateChange func(old, new ConnectionState)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 5,
		PingInterval:         30 * time.Second,
		PongTimeout:          10 * time.Second,
		PollInterval:         60 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
}

// Stats reports client counters.
type Stats struct {
	Reconnects    int64 // Scheduled reconnect attempts
	MissedPongs   int64 // Heartbeat timeouts that forced a reconnect
	PollCycles    int64 // Successful fallback polls
	PollErrors    int64 // Failed fallback polls
	Dispatched    int64 // Messages routed to subscribers
	DroppedFrames int64 // Malformed frames discarded
	UnknownTags   int64 // Well-formed frames with an unrecognized tag
	HandlerPanics int64 // Subscriber callbacks recovered from panic
}

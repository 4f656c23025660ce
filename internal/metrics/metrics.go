// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Live channel connection state and reconnect counts
//   - Message dispatch rates by tag and dropped-frame counts
//   - Fallback poll cycles by result
//   - Writer row and flush counts
//
// These are registered in init() and served by the health HTTP server at
// the configured metrics path (Prometheus text exposition format).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState exposes one labeled series per state, flipped
	// between 0/1 to keep dashboards simple.
	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalfeed_connection_state",
			Help: "Live channel state indicator (one series per state).",
		},
		[]string{"state"},
	)

	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalfeed_reconnects_total",
			Help: "Scheduled reconnect attempts.",
		},
	)

	MessagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalfeed_messages_total",
			Help: "Messages dispatched to subscribers, by tag.",
		},
		[]string{"type"},
	)

	DroppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalfeed_dropped_frames_total",
			Help: "Malformed frames discarded by the dispatcher.",
		},
	)

	MissedPongs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalfeed_missed_pongs_total",
			Help: "Heartbeat timeouts that forced a reconnect.",
		},
	)

	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalfeed_poll_cycles_total",
			Help: "Fallback poll cycles by result (ok|error).",
		},
		[]string{"result"},
	)

	WriterRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalfeed_writer_rows_total",
			Help: "Rows processed by batch writers, by writer and result (inserted|conflict|error).",
		},
		[]string{"writer", "result"},
	)

	WriterFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalfeed_writer_flushes_total",
			Help: "Batch flushes by writer.",
		},
		[]string{"writer"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		Reconnects,
		MessagesDispatched,
		DroppedFrames,
		MissedPongs,
		PollCycles,
		WriterRows,
		WriterFlushes,
	)
}

var allStates = []string{"disconnected", "connecting", "connected", "reconnecting", "error"}

// SetConnectionState flips the state gauge so exactly one series reads 1.
func SetConnectionState(state string) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

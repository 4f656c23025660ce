// Package realtime implements the resilient real-time client for the
// trading-signal backend.
//
// The client:
//   - Owns a single WebSocket connection and its state machine
//     (disconnected → connecting → connected → reconnecting → error)
//   - Reconnects with exponential backoff up to a configured attempt limit
//   - Sends application-level ping frames and treats a missed pong as a close
//   - Falls back to REST polling once reconnect attempts are exhausted,
//     feeding poll results through the same dispatcher so subscribers are
//     agnostic to transport
//   - Dispatches decoded messages to subscribers by type tag, in registration
//     order, with per-callback panic isolation
//
// Every timer and loop is tagged with the generation under which it was
// scheduled and, where a connection is involved, with that connection.
// Connect and Disconnect bump the generation; an internal redial replaces
// the connection. A callback checks both before acting, so anything left
// over from a dead connection or a previous session is inert.
package realtime

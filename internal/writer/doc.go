// Package writer implements batch writers for captured stream data.
//
// Writers:
//   - Signal event writer (signal_events table)
//   - Regime writer (regime_updates table)
//
// Each writer consumes from a GrowableBuffer, accumulates rows, and flushes
// on size or interval using pgx batches. All writes are append-only with
// ON CONFLICT DO NOTHING, so replayed events are harmless.
package writer

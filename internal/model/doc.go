// Package model defines shared data types used across signalfeed.
//
// Conventions:
//   - Prices: float64 as delivered by the signal backend
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID for signals, string for symbols
package model

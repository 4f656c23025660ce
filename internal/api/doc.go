// Package api implements the REST client for the trading-signal backend.
//
// All requests go through a shared retry path with exponential backoff and
// jitter. 5xx responses and 429 are retried; other 4xx responses fail
// immediately. Responses use a {success, data} envelope; a 2xx response with
// success=false is surfaced as ErrBackendFailure.
package api

// Package database provides the PostgreSQL connection pool for signal
// history.
//
// signalfeed persists signal lifecycle events and regime updates locally so
// the dashboard's notification history survives restarts of either side.
package database

// Package config loads and validates signalfeed configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Optional fields
// fall back to the Default* constants in defaults.go; Validate enforces
// required fields and cross-field constraints.
package config

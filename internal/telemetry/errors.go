package telemetry

import "errors"

// Sentinel errors for telemetry operations, checked with errors.Is.
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("telemetry: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrDisabled indicates InfluxDB integration is disabled in configuration.
	ErrDisabled = errors.New("telemetry: disabled in configuration")
)

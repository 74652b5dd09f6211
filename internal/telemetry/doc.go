// Package telemetry provides optional InfluxDB connectivity for the kiosk
// controller.
//
// It wraps the official influxdb-client-go v2 library to record
// time-series observations about the sequence engine, QR validation
// outcomes, and backend request latency — the operational signals an
// on-site technician or a fleet dashboard would want, distinct from the
// audit trail (internal/audit), which is a compliance record, not a
// metrics stream.
//
// The sink is entirely optional: when config.InfluxDBConfig.Enabled()
// reports false, callers skip Connect and every write call on a nil
// *Client is a safe no-op, so the rest of the controller never needs to
// branch on whether telemetry is configured.
package telemetry

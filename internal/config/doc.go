// Package config loads the kiosk controller's configuration from an
// optional YAML base file plus environment variable overrides.
//
// Environment variables are authoritative and match the names used in the
// kiosk fleet's deployment tooling (RASPBERRY_NAME, BASE_API_URL, API_KEY,
// RASPBERRY_API_KEY, HEALTHCHECK_INTERVAL, SYNC_INTERVAL, API_TIMEOUT,
// UART_PORT, UART_BAUDRATE, DATABASE_URL, LOG_LEVEL, LOG_FILE, DEBUG,
// PRIVATE_KEY_QR, HID_DEVICE_PATH, INFLUXDB_URL, INFLUXDB_TOKEN,
// INFLUXDB_ORG, INFLUXDB_BUCKET).
package config

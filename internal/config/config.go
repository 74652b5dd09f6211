// Package config loads the kiosk controller's configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the kiosk controller.
//
// Values are loaded in two layers: an optional YAML file named by
// CONFIG_FILE supplies a base configuration (useful for per-site defaults
// checked into a fleet-management repo), and the documented environment
// variables are then applied as overrides — the environment always wins.
// When neither a file nor an environment variable sets a field, the
// documented default applies.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Backend  BackendConfig  `yaml:"backend"`
	Serial   SerialConfig   `yaml:"serial"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	QR       QRConfig       `yaml:"qr"`
	HID      HIDConfig      `yaml:"hid"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Debug    bool           `yaml:"debug"`
}

// DeviceConfig identifies this kiosk to the backend.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// BackendConfig holds the remote API connection settings.
type BackendConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RaspberryAPIKey   string        `yaml:"raspberry_api_key"`
	HealthcheckPeriod time.Duration `yaml:"healthcheck_interval"`
	SyncPeriod        time.Duration `yaml:"sync_interval"`
	Timeout           time.Duration `yaml:"api_timeout"`
}

// SerialConfig holds the MCU link settings.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// DatabaseConfig holds the SQLite store settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds process-log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// QRConfig holds the QR validator's secret.
type QRConfig struct {
	PrivateKey string `yaml:"private_key"`
}

// HIDConfig holds the QR scanner device settings.
type HIDConfig struct {
	DevicePath string `yaml:"device_path"`
}

// InfluxDBConfig holds the optional telemetry sink settings.
// The sink is disabled unless URL is non-empty.
type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether the telemetry sink should be started.
func (c InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

// Load builds the configuration: defaults, then an optional YAML file
// (CONFIG_FILE), then environment variable overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			HealthcheckPeriod: 180 * time.Second,
			SyncPeriod:        600 * time.Second,
			Timeout:           30 * time.Second,
		},
		Serial: SerialConfig{
			BaudRate: 9600,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		QR: QRConfig{
			PrivateKey: "default_key",
		},
	}
}

// applyEnvOverrides applies the documented environment variables on top of
// cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RASPBERRY_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("BASE_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("RASPBERRY_API_KEY"); v != "" {
		cfg.Backend.RaspberryAPIKey = v
	}
	if v := envInt("HEALTHCHECK_INTERVAL"); v > 0 {
		cfg.Backend.HealthcheckPeriod = time.Duration(v) * time.Second
	}
	if v := envInt("SYNC_INTERVAL"); v > 0 {
		cfg.Backend.SyncPeriod = time.Duration(v) * time.Second
	}
	if v := envInt("API_TIMEOUT"); v > 0 {
		cfg.Backend.Timeout = time.Duration(v) * time.Second
	}
	if v := os.Getenv("UART_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := envInt("UART_BAUDRATE"); v > 0 {
		cfg.Serial.BaudRate = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("PRIVATE_KEY_QR"); v != "" {
		cfg.QR.PrivateKey = v
	}
	if v := os.Getenv("HID_DEVICE_PATH"); v != "" {
		cfg.HID.DevicePath = v
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("INFLUXDB_ORG"); v != "" {
		cfg.InfluxDB.Org = v
	}
	if v := os.Getenv("INFLUXDB_BUCKET"); v != "" {
		cfg.InfluxDB.Bucket = v
	}
	if v, ok := os.LookupEnv("DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks that the fields required to construct the backend client
// and the serial link are present. Called once at startup; a failure here is
// fatal and exits the process before any component is constructed.
func (c *Config) Validate() error {
	var missing []string

	if c.Device.Name == "" {
		missing = append(missing, "RASPBERRY_NAME")
	}
	if c.Backend.BaseURL == "" {
		missing = append(missing, "BASE_API_URL")
	}
	if c.Backend.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.Backend.RaspberryAPIKey == "" {
		missing = append(missing, "RASPBERRY_API_KEY")
	}
	if c.Serial.Port == "" {
		missing = append(missing, "UART_PORT")
	}
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

// Sanitized returns a copy with every credential and secret redacted, safe
// to print for --check-config.
func (c *Config) Sanitized() *Config {
	clone := *c
	clone.Backend.APIKey = redact(c.Backend.APIKey)
	clone.Backend.RaspberryAPIKey = redact(c.Backend.RaspberryAPIKey)
	clone.QR.PrivateKey = redact(c.QR.PrivateKey)
	clone.InfluxDB.Token = redact(c.InfluxDB.Token)
	return &clone
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

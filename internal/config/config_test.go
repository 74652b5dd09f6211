package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE", "RASPBERRY_NAME", "BASE_API_URL", "API_KEY", "RASPBERRY_API_KEY",
		"HEALTHCHECK_INTERVAL", "SYNC_INTERVAL", "API_TIMEOUT", "UART_PORT", "UART_BAUDRATE",
		"DATABASE_URL", "LOG_LEVEL", "LOG_FILE", "PRIVATE_KEY_QR", "HID_DEVICE_PATH",
		"INFLUXDB_URL", "INFLUXDB_TOKEN", "INFLUXDB_ORG", "INFLUXDB_BUCKET", "DEBUG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.HealthcheckPeriod != 180*time.Second {
		t.Errorf("HealthcheckPeriod = %v, want 180s", cfg.Backend.HealthcheckPeriod)
	}
	if cfg.Backend.SyncPeriod != 600*time.Second {
		t.Errorf("SyncPeriod = %v, want 600s", cfg.Backend.SyncPeriod)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Backend.Timeout)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.QR.PrivateKey != "default_key" {
		t.Errorf("PrivateKey = %q, want default_key", cfg.QR.PrivateKey)
	}
	if cfg.InfluxDB.Enabled() {
		t.Error("expected InfluxDB disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RASPBERRY_NAME", "kiosk-01")
	t.Setenv("BASE_API_URL", "https://api.paka.eco")
	t.Setenv("API_KEY", "bearer-token")
	t.Setenv("RASPBERRY_API_KEY", "raspberry-key")
	t.Setenv("UART_PORT", "/dev/ttyUSB0")
	t.Setenv("DATABASE_URL", "/var/lib/kiosk/kiosk.db")
	t.Setenv("SYNC_INTERVAL", "120")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Name != "kiosk-01" {
		t.Errorf("Device.Name = %q, want kiosk-01", cfg.Device.Name)
	}
	if cfg.Backend.SyncPeriod != 120*time.Second {
		t.Errorf("SyncPeriod = %v, want 120s", cfg.Backend.SyncPeriod)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug (DEBUG=true elevates it)", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to fail with no required config set")
	}
}

func TestSanitized_RedactsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "super-secret")
	t.Setenv("PRIVATE_KEY_QR", "qr-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s := cfg.Sanitized()
	if s.Backend.APIKey == "super-secret" {
		t.Error("expected API key to be redacted")
	}
	if s.QR.PrivateKey == "qr-secret" {
		t.Error("expected QR private key to be redacted")
	}
	// Original must be untouched.
	if cfg.Backend.APIKey != "super-secret" {
		t.Error("Sanitized() must not mutate the receiver")
	}
}

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/qr"
)

// timestampLayouts are tried in order when parsing a backend-supplied
// timestamp, which may be ISO-8601 with a trailing Z or the
// "YYYY-MM-DD HH:MM:SS.mmm+00" form this client itself sends.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000-07",
	"2006-01-02T15:04:05.000Z",
}

// FormatTimestamp renders t in the form the backend expects on requests:
// "YYYY-MM-DD HH:MM:SS.mmm+00".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000") + "+00"
}

// ParseTimestamp tolerantly parses a backend-supplied timestamp. An empty
// string yields the zero time with no error.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, lastErr)
}

// Config holds the connection settings for the backend HTTP client.
type Config struct {
	BaseURL         string
	APIKey          string // sent as "Authorization: Bearer <APIKey>"
	RaspberryAPIKey string // sent as "x-api-key"
	DeviceName      string // sent as "x-name"
	Timeout         time.Duration
}

// Client is the typed HTTP client for the three backend endpoints.
// It is built on go-resty rather than a bare net/http.Client so every call
// gets bounded timeouts, automatic retry on transport failure, and
// consistent header injection without repeating it at each call site.
type Client struct {
	http *resty.Client
	log  *logging.Logger
}

// New returns a Client configured against cfg.
func New(cfg Config, log *logging.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("x-api-key", cfg.RaspberryAPIKey).
		SetHeader("x-name", cfg.DeviceName).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	return &Client{http: http, log: log}
}

// HealthcheckResult is the parsed /raspberry-healthcheck response.
type HealthcheckResult struct {
	Success bool
	// Active is nil when the server omitted the field.
	Active *bool
}

type healthcheckRequest struct {
	Version        string `json:"version"`
	UpdateFailures int    `json:"updateFailures"`
}

type healthcheckResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Active *bool `json:"active"`
	} `json:"data"`
}

// Healthcheck reports this device's version and consecutive failure count.
// A transport failure is returned as an error; the caller counts it toward
// update_failures. A reachable-but-unsuccessful response is reported via
// HealthcheckResult.Success = false with a nil error.
func (c *Client) Healthcheck(ctx context.Context, version string, updateFailures int) (HealthcheckResult, error) {
	var out healthcheckResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(healthcheckRequest{Version: version, UpdateFailures: updateFailures}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/functions/v1/raspberry-healthcheck")
	if err != nil {
		return HealthcheckResult{}, fmt.Errorf("backend: healthcheck request: %w", err)
	}
	if resp.IsError() {
		return HealthcheckResult{}, fmt.Errorf("backend: healthcheck returned status %d", resp.StatusCode())
	}
	return HealthcheckResult{Success: out.Success, Active: out.Data.Active}, nil
}

// SyncLogEntry is one outgoing audit log row in a sync request.
type SyncLogEntry struct {
	Type            string  `json:"type"`
	Description     string  `json:"description"`
	IsOfflineAction bool    `json:"isOfflineAction"`
	ContainerID     *string `json:"containerId"`
	CreatedAt       string  `json:"createdAt"`
}

// SyncContainer is one outgoing container row in a sync request.
type SyncContainer struct {
	ID           string `json:"id"`
	IsReturnable bool   `json:"isReturnable"`
	UpdatedAt    string `json:"updatedAt"`
}

// SyncedContainer is one container as the backend returns it: the
// authoritative catalog that replaces the local set.
type SyncedContainer struct {
	ID           string  `json:"id"`
	QRCode       string  `json:"qrCode"`
	IsReturnable bool    `json:"isReturnable"`
	DueTime      *string `json:"dueTime"`
}

// SyncResult is the parsed /raspberry-sync response.
type SyncResult struct {
	Success    bool
	Containers []SyncedContainer
}

type syncRequest struct {
	Logs       []SyncLogEntry  `json:"logs"`
	Containers []SyncContainer `json:"containers"`
}

type syncResponse struct {
	Success bool              `json:"success"`
	Data    []SyncedContainer `json:"data"`
}

// Sync uploads locally-changed logs and containers and returns the
// authoritative container catalog the backend replies with.
func (c *Client) Sync(ctx context.Context, logs []SyncLogEntry, containers []SyncContainer) (SyncResult, error) {
	if logs == nil {
		logs = []SyncLogEntry{}
	}
	if containers == nil {
		containers = []SyncContainer{}
	}

	var out syncResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(syncRequest{Logs: logs, Containers: containers}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/functions/v1/raspberry-sync")
	if err != nil {
		return SyncResult{}, fmt.Errorf("backend: sync request: %w", err)
	}
	if resp.IsError() {
		return SyncResult{}, fmt.Errorf("backend: sync returned status %d", resp.StatusCode())
	}
	return SyncResult{Success: out.Success, Containers: out.Data}, nil
}

type validateRequest struct {
	ID string `json:"id"`
}

type validateResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ContainerData struct {
			ID           string `json:"id"`
			IsReturnable bool   `json:"isReturnable"`
			UpdatedAt    string `json:"updatedAt"`
		} `json:"containerData"`
	} `json:"data"`
}

// ValidateContainer asks the backend whether containerID may be returned.
// It satisfies qr.Backend. A transport failure is a Go error (the caller
// falls back to the offline policy); a reachable-but-unsuccessful response
// is BackendValidateResult{Success: false} with a nil error (no fallback,
// the rejection is respected as-is).
func (c *Client) ValidateContainer(ctx context.Context, containerID string) (qr.BackendValidateResult, error) {
	var out validateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(validateRequest{ID: containerID}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/functions/v1/raspberry-container-validate")
	if err != nil {
		return qr.BackendValidateResult{}, fmt.Errorf("backend: validate request: %w", err)
	}
	if resp.IsError() {
		return qr.BackendValidateResult{}, fmt.Errorf("backend: validate returned status %d", resp.StatusCode())
	}
	if !out.Success {
		return qr.BackendValidateResult{Success: false}, nil
	}

	updatedAt, perr := ParseTimestamp(out.Data.ContainerData.UpdatedAt)
	if perr != nil {
		c.log.Warn("backend: could not parse container updatedAt", "error", perr, "container_id", containerID)
	}
	return qr.BackendValidateResult{
		Success:      true,
		IsReturnable: out.Data.ContainerData.IsReturnable,
		UpdatedAt:    updatedAt,
	}, nil
}

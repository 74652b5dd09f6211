package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSequenceEvent records one SEQ1-SEQ5 run: its outcome (completed or
// failed) and how long it took. The sequence engine calls this
// once per sequence, win or lose, so sequence duration and failure rate
// can be graphed over time.
func (c *Client) WriteSequenceEvent(sequence, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"sequence",
		map[string]string{
			"sequence": sequence,
			"outcome":  outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteValidationEvent records one QR validation decision: accepted,
// rejected, or fraud, and whether it was decided online or via the
// offline fallback.
func (c *Client) WriteValidationEvent(outcome string, offline bool) {
	if !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"validation",
		map[string]string{
			"outcome": outcome,
			"offline": boolTag(offline),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteBackendLatency records the round-trip time of one backend call,
// tagged with whether it succeeded. The sync service records its
// healthcheck and sync calls; container validation calls are not recorded.
func (c *Client) WriteBackendLatency(endpoint string, duration time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"backend_latency",
		map[string]string{
			"endpoint": endpoint,
			"success":  boolTag(success),
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteModeGate records a transition of one of the two mode gates
// (device_inactive, secure_mode), so a dashboard can overlay downtime
// windows on top of sequence activity.
func (c *Client) WriteModeGate(gate string, active bool) {
	if !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"mode_gate",
		map[string]string{"gate": gate},
		map[string]interface{}{"active": active},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields,
// for telemetry that doesn't fit the helpers above.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

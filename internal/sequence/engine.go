package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/protocol"
	"github.com/paka-eco/kiosk-controller/internal/qr"
	"github.com/paka-eco/kiosk-controller/internal/telemetry"
)

const (
	ackTimeout         = 5 * time.Second
	qrWaitTimeout      = 30 * time.Second
	removalWaitTimeout = 120 * time.Second
	seq4TriggerAge     = 180 * time.Second
	seq1LightTimeout   = 60 * time.Second
	seq1UnblockSleep   = 1 * time.Second
	seq5RecoverySleep  = 2 * time.Second

	// tickDrainBudget bounds how long one Tick spends draining the serial
	// link before evaluating auto-triggers, leaving the rest of the ~1 Hz
	// tick period for the caller's other responsibilities.
	tickDrainBudget = 900 * time.Millisecond
)

// Link is the subset of *protocol.Link the engine drives commands and
// events through.
type Link interface {
	Send(typ protocol.MessageType, payload []byte) (protocol.Frame, error)
	SendAck(orig protocol.Frame) error
	Receive(ctx context.Context) (protocol.Frame, error)
	WaitForAck(ctx context.Context, typ protocol.MessageType, id int, timeout time.Duration) error
}

// Validator is the subset of *qr.Validator SEQ3 needs.
type Validator interface {
	Decide(ctx context.Context, raw string) qr.Decision
}

// Engine is the SEQ1-SEQ5 state machine. It is driven by a single caller
// on a single goroutine via Tick; it is not safe for concurrent use.
type Engine struct {
	link      Link
	validator Validator
	audit     *audit.Logger
	log       *logging.Logger
	telemetry *telemetry.Client
	qrChan    <-chan string
	now       func() time.Time

	state State
}

// New returns an Engine. qrChan delivers completed QR scans from the input
// reader; the engine only consumes from it while SEQ3 is waiting.
func New(link Link, validator Validator, auditLogger *audit.Logger, log *logging.Logger, tel *telemetry.Client, qrChan <-chan string) *Engine {
	return &Engine{
		link:      link,
		validator: validator,
		audit:     auditLogger,
		log:       log,
		telemetry: tel,
		qrChan:    qrChan,
		now:       time.Now,
		state:     newState(),
	}
}

// Start synchronizes with the MCU at boot: a restart to put it in a known
// state, then a sensor-status query so sensor tracking begins from the
// hardware's actual readings. The MCU answers the query with one
// SENSOR_STATE_CHANGE per sensor, consumed by the next Tick.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.sendAwait(ctx, protocol.TypeRestart, nil); err != nil {
		return err
	}
	if err := e.sendAwait(ctx, protocol.TypeGetSensorStatus, nil); err != nil {
		return err
	}
	e.audit.HardwareStatus(ctx, "microcontroller restarted and sensor snapshot requested")
	return nil
}

// Tick drains whatever frames are currently available on the link,
// dispatching each to its sequence handler, then evaluates the time-based
// auto-triggers (SEQ1 light timeout, SEQ4 storage trigger). It returns
// promptly except when an auto-trigger runs a sequence with its own
// suspension points (bounded by their declared timeouts).
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.processMessages(ctx); err != nil {
		return err
	}
	e.evaluateAutoTriggers(ctx)
	return nil
}

// processMessages drains the link for up to tickDrainBudget, handling each
// frame as it arrives. Running out of budget is not an error.
func (e *Engine) processMessages(ctx context.Context) error {
	deadline := time.Now().Add(tickDrainBudget)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		frameCtx, cancel := context.WithTimeout(ctx, remaining)
		f, err := e.link.Receive(frameCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sequence: receive: %w", err)
		}
		e.handleFrame(ctx, f)
	}
}

// handleFrame ACKs every non-ACK frame unconditionally, then dispatches
// event frames to their sequence handler unless a mode gate suppresses it.
func (e *Engine) handleFrame(ctx context.Context, f protocol.Frame) {
	if f.Type != protocol.TypeACK {
		if err := e.link.SendAck(f); err != nil {
			e.log.Error("ack send failed", "error", err, "type", f.Type, "id", f.ID)
		}
	}

	switch f.Type {
	case protocol.TypeSensorStateChange:
		e.decodeSensor(ctx, f)
	case protocol.TypeButtonPushed:
		if e.state.Gated() {
			e.log.Warn("button pushed suppressed by mode gate", "device_inactive", e.state.DeviceInactive, "secure_mode", e.state.SecureMode)
			return
		}
		e.runSeq1(ctx)
	case protocol.TypeErrorMsg:
		e.audit.HardwareError(ctx, string(f.Payload))
	}
}

// decodeSensor updates sensor tracking unconditionally — removal edges
// must be seen even while a mode gate is up, or SEQ4's removal wait would
// start from stale readings — then dispatches SEQ2/SEQ3 if not gated and
// not already run this cycle.
func (e *Engine) decodeSensor(ctx context.Context, f protocol.Frame) {
	if len(f.Payload) < 2 {
		e.log.Warn("malformed sensor frame payload", "len", len(f.Payload))
		return
	}
	sensor := Sensor(f.Payload[0])
	present := f.Payload[1] == 1
	e.state.SensorPresent[sensor] = present

	if !present {
		return
	}
	if e.state.Gated() {
		e.log.Warn("sensor present suppressed by mode gate", "sensor", sensor)
		return
	}

	switch sensor {
	case SensorCover:
		if !e.state.Seq2Completed {
			e.runSeq2(ctx)
		}
	case SensorContainer:
		if !e.state.Seq3Completed {
			e.runSeq3(ctx)
		}
	}
}

// evaluateAutoTriggers runs the two time-based transitions that aren't
// driven by an incoming frame: the SEQ1 light timeout and the SEQ4 storage
// trigger.
func (e *Engine) evaluateAutoTriggers(ctx context.Context) {
	if e.state.Seq1LightsActive && e.now().Sub(e.state.Seq1ActivatedAt) > seq1LightTimeout {
		e.lightOffBestEffort(ctx, LightContainer)
		e.lightOffBestEffort(ctx, LightCover)
		e.state.Seq1LightsActive = false
	}

	if e.state.Seq4InProgress {
		return
	}
	seq2Ready := e.state.Seq2Completed && e.now().Sub(e.state.Seq2CompletedAt) > seq4TriggerAge
	seq3Ready := e.state.Seq3Completed && e.now().Sub(e.state.Seq3CompletedAt) > seq4TriggerAge
	if seq2Ready || seq3Ready {
		e.runSeq4(ctx)
	}
}

// SetDeviceActive updates the device_inactive mode gate from the sync
// service's view of the backend's active flag.
func (e *Engine) SetDeviceActive(ctx context.Context, active bool) {
	inactive := !active
	if inactive == e.state.DeviceInactive {
		return
	}
	e.state.DeviceInactive = inactive
	e.audit.ModeTransition(ctx, "device_inactive", inactive)
	e.telemetry.WriteModeGate("device_inactive", inactive)
}

// SetSecureMode updates the secure_mode gate from the sync service's
// unreachable-backend watchdog.
func (e *Engine) SetSecureMode(ctx context.Context, secure bool) {
	if secure == e.state.SecureMode {
		return
	}
	e.state.SecureMode = secure
	e.audit.ModeTransition(ctx, "secure_mode", secure)
	e.telemetry.WriteModeGate("secure_mode", secure)
}

// Snapshot returns a copy of the engine's current state, safe to inspect
// without racing the tick goroutine (the caller must still only call this
// from the same goroutine that drives Tick, or after it has stopped).
func (e *Engine) Snapshot() State {
	return e.state.clone()
}

// LightsOffBestEffort sends both lights off without waiting for ACKs, for
// use during shutdown when there may be no time left to honor a 5 s ACK
// budget.
func (e *Engine) LightsOffBestEffort(ctx context.Context) {
	e.lightOffBestEffort(ctx, LightContainer)
	e.lightOffBestEffort(ctx, LightCover)
}

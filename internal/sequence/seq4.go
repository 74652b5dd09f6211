package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/protocol"
)

// runSeq4 is the storage sequence: store both bays, wait for both sensors
// to clear, turn the lights off, and clear the cycle's completion flags.
// The seq4_in_progress guard makes this non-reentrant: evaluateAutoTriggers
// and an in-flight SEQ4 never overlap.
func (e *Engine) runSeq4(ctx context.Context) {
	const name = "SEQ4"
	e.state.Seq4InProgress = true
	defer func() { e.state.Seq4InProgress = false }()

	e.audit.SequenceStarted(ctx, name)
	start := e.now()

	err := e.seq4Steps(ctx)

	dur := e.now().Sub(start)
	if err != nil {
		e.fail(ctx, name, err)
		e.telemetry.WriteSequenceEvent(name, "failed", dur)
		return
	}

	e.state.Seq2Completed = false
	e.state.Seq3Completed = false
	e.audit.SequenceCompleted(ctx, name)
	e.telemetry.WriteSequenceEvent(name, "completed", dur)

	if e.state.SensorPresent[SensorCover] || e.state.SensorPresent[SensorContainer] {
		e.runSeq5(ctx)
	}
}

func (e *Engine) seq4Steps(ctx context.Context) error {
	if err := e.actuatorMove(ctx, ActuatorContainer, ActuatorStore); err != nil {
		return err
	}
	if err := e.actuatorMove(ctx, ActuatorCover, ActuatorStore); err != nil {
		return err
	}

	if !e.waitBothSensorsAbsent(ctx, removalWaitTimeout) {
		e.log.Debug("seq4 removal wait did not clear both sensors", "error", ErrSeq4RemovalTimeout)
	}

	return e.lightsAllOff(ctx)
}

// waitBothSensorsAbsent is SEQ4.1: consume incoming frames, ACKing every
// one, tracking SENSOR_STATE_CHANGE(absent) edges, until both sensors read
// absent or timeout elapses.
func (e *Engine) waitBothSensorsAbsent(ctx context.Context, timeout time.Duration) bool {
	deadline := e.now().Add(timeout)

	for {
		if !e.state.SensorPresent[SensorCover] && !e.state.SensorPresent[SensorContainer] {
			return true
		}

		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return false
		}

		frameCtx, cancel := context.WithTimeout(ctx, remaining)
		f, err := e.link.Receive(frameCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return false
			}
			e.log.Warn("removal wait receive error", "error", err)
			continue
		}

		if f.Type != protocol.TypeACK {
			if err := e.link.SendAck(f); err != nil {
				e.log.Error("removal wait ack send failed", "error", err, "type", f.Type, "id", f.ID)
			}
		}

		if f.Type != protocol.TypeSensorStateChange || len(f.Payload) < 2 {
			continue
		}
		if f.Payload[1] == 0 {
			e.state.SensorPresent[Sensor(f.Payload[0])] = false
		}
	}
}

package sequence

import (
	"context"
	"fmt"

	"github.com/paka-eco/kiosk-controller/internal/protocol"
)

// runSeq5 is the recovery sequence: run only when SEQ4 finishes its
// removal wait with a sensor still present. It reopens both bays, gives
// the user a chance to clear the jam, then lights red over whichever
// sensor is still occupied and raises a maintenance error.
func (e *Engine) runSeq5(ctx context.Context) {
	const name = "SEQ5"
	e.audit.SequenceStarted(ctx, name)
	start := e.now()

	err := e.seq5Steps(ctx)

	dur := e.now().Sub(start)
	if err != nil {
		e.fail(ctx, name, err)
		e.telemetry.WriteSequenceEvent(name, "failed", dur)
		return
	}

	e.audit.SequenceCompleted(ctx, name)
	e.telemetry.WriteSequenceEvent(name, "completed", dur)
}

func (e *Engine) seq5Steps(ctx context.Context) error {
	if err := e.actuatorMove(ctx, ActuatorContainer, ActuatorOpen); err != nil {
		return err
	}
	if err := e.actuatorMove(ctx, ActuatorCover, ActuatorOpen); err != nil {
		return err
	}
	if err := e.sleep(ctx, seq5RecoverySleep); err != nil {
		return err
	}

	var last protocol.Frame
	var redIssued bool
	for _, s := range [...]Sensor{SensorCover, SensorContainer} {
		if !e.state.SensorPresent[s] {
			continue
		}
		f, err := e.link.Send(protocol.TypeLightManagement, []byte{byte(lightPositionFor(s)), byte(ColorRed), byte(ModeSteady)})
		if err != nil {
			return fmt.Errorf("sequence: seq5 light red: %w", err)
		}
		last = f
		redIssued = true
	}

	if redIssued {
		if err := e.link.WaitForAck(ctx, last.Type, last.ID, ackTimeout); err != nil {
			return fmt.Errorf("sequence: seq5 await ack: %w", err)
		}
	}

	e.audit.HardwareError(ctx, "item stuck: maintenance required")
	return nil
}

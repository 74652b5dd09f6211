package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/protocol"
)

// sendAwait sends one command and blocks for its ACK with the standard 5 s
// budget every sequence step runs under.
func (e *Engine) sendAwait(ctx context.Context, typ protocol.MessageType, payload []byte) error {
	f, err := e.link.Send(typ, payload)
	if err != nil {
		return fmt.Errorf("sequence: send %v: %w", typ, err)
	}
	if err := e.link.WaitForAck(ctx, typ, f.ID, ackTimeout); err != nil {
		return fmt.Errorf("sequence: await ack for %v: %w", typ, err)
	}
	return nil
}

func (e *Engine) doorControl(ctx context.Context, action DoorAction) error {
	return e.sendAwait(ctx, protocol.TypeDoorControl, []byte{byte(action)})
}

func (e *Engine) actuatorMove(ctx context.Context, act Actuator, action ActuatorAction) error {
	return e.sendAwait(ctx, protocol.TypeActuatorMovement, []byte{byte(act), byte(action)})
}

func (e *Engine) lightSet(ctx context.Context, pos LightPosition, color LightColor, mode LightMode) error {
	return e.sendAwait(ctx, protocol.TypeLightManagement, []byte{byte(pos), byte(color), byte(mode)})
}

func (e *Engine) lightsAllOff(ctx context.Context) error {
	if err := e.lightSet(ctx, LightContainer, ColorOff, ModeSteady); err != nil {
		return err
	}
	return e.lightSet(ctx, LightCover, ColorOff, ModeSteady)
}

// lightOffBestEffort sends a light-off command without waiting for its ACK,
// for the SEQ1 light timeout and shutdown paths, which don't abort on a
// missed ACK.
func (e *Engine) lightOffBestEffort(_ context.Context, pos LightPosition) {
	if _, err := e.link.Send(protocol.TypeLightManagement, []byte{byte(pos), byte(ColorOff), byte(ModeSteady)}); err != nil {
		e.log.Warn("best-effort light-off send failed", "position", pos, "error", err)
	}
}

// sleep blocks for d or until ctx is done, whichever comes first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records a sequence failure and best-effort turns the container
// light red, the error state a user sees when any step aborts.
func (e *Engine) fail(ctx context.Context, name string, err error) {
	e.audit.SequenceFailed(ctx, name, err)
	if _, sendErr := e.link.Send(protocol.TypeLightManagement, []byte{byte(LightContainer), byte(ColorRed), byte(ModeSteady)}); sendErr != nil {
		e.log.Error("error-state light send failed", "sequence", name, "error", sendErr)
	}
}

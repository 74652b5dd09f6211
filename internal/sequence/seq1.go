package sequence

import "context"

// runSeq1 is the activation sequence: unblock the doors, give the user a
// second to reach in, re-block, then light both bays white.
func (e *Engine) runSeq1(ctx context.Context) {
	const name = "SEQ1"
	e.audit.SequenceStarted(ctx, name)
	start := e.now()

	err := e.seq1Steps(ctx)

	dur := e.now().Sub(start)
	if err != nil {
		e.fail(ctx, name, err)
		e.telemetry.WriteSequenceEvent(name, "failed", dur)
		return
	}

	e.state.Seq1LightsActive = true
	e.state.Seq1ActivatedAt = e.now()
	e.audit.SequenceCompleted(ctx, name)
	e.telemetry.WriteSequenceEvent(name, "completed", dur)
}

func (e *Engine) seq1Steps(ctx context.Context) error {
	if err := e.doorControl(ctx, DoorUnblock); err != nil {
		return err
	}
	if err := e.sleep(ctx, seq1UnblockSleep); err != nil {
		return err
	}
	if err := e.doorControl(ctx, DoorBlock); err != nil {
		return err
	}
	if err := e.lightSet(ctx, LightCover, ColorWhite, ModeSteady); err != nil {
		return err
	}
	return e.lightSet(ctx, LightContainer, ColorWhite, ModeSteady)
}

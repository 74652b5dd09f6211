package sequence

import "context"

// runSeq2 is the cover-accepted sequence: clear any SEQ1 activation
// lights, light the cover green, and mark the cycle's cover side done.
func (e *Engine) runSeq2(ctx context.Context) {
	const name = "SEQ2"
	e.audit.SequenceStarted(ctx, name)
	start := e.now()

	err := e.seq2Steps(ctx)

	dur := e.now().Sub(start)
	if err != nil {
		e.fail(ctx, name, err)
		e.telemetry.WriteSequenceEvent(name, "failed", dur)
		return
	}

	e.state.Seq2Completed = true
	e.state.Seq2CompletedAt = e.now()
	e.audit.SequenceCompleted(ctx, name)
	e.telemetry.WriteSequenceEvent(name, "completed", dur)
}

func (e *Engine) seq2Steps(ctx context.Context) error {
	e.state.Seq1LightsActive = false
	return e.lightSet(ctx, LightCover, ColorGreen, ModeSteady)
}

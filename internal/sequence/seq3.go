package sequence

import (
	"context"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/qr"
)

// runSeq3 is the container-scan sequence: wait for a QR string, run it
// through the validation decision policy, and light the container
// accordingly.
func (e *Engine) runSeq3(ctx context.Context) {
	const name = "SEQ3"
	e.audit.SequenceStarted(ctx, name)
	start := e.now()

	err := e.seq3Steps(ctx)

	dur := e.now().Sub(start)
	if err != nil {
		e.fail(ctx, name, err)
		e.telemetry.WriteSequenceEvent(name, "failed", dur)
		return
	}

	e.state.Seq3Completed = true
	e.state.Seq3CompletedAt = e.now()
	e.audit.SequenceCompleted(ctx, name)
	e.telemetry.WriteSequenceEvent(name, "completed", dur)
}

func (e *Engine) seq3Steps(ctx context.Context) error {
	e.state.Seq1LightsActive = false

	raw, ok := e.waitForQR(ctx, qrWaitTimeout)

	var decision qr.Decision
	if !ok {
		decision = qr.Decision{Outcome: qr.OutcomeRejected}
	} else {
		decision = e.validator.Decide(ctx, raw)
	}
	e.telemetry.WriteValidationEvent(outcomeLabel(decision.Outcome), decision.Offline)

	color := ColorRed
	if decision.Outcome == qr.OutcomeAccepted {
		color = ColorGreen
	}
	return e.lightSet(ctx, LightContainer, color, ModeSteady)
}

// waitForQR blocks for the input reader to deliver a scan, without
// processing serial frames — the outer tick loop resumes draining once
// SEQ3 returns.
func (e *Engine) waitForQR(ctx context.Context, timeout time.Duration) (string, bool) {
	e.state.WaitingForQR = true
	defer func() { e.state.WaitingForQR = false }()

	select {
	case raw := <-e.qrChan:
		return raw, true
	case <-time.After(timeout):
		e.log.Debug("qr wait expired", "error", ErrQRWaitTimeout)
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func outcomeLabel(o qr.Outcome) string {
	switch o {
	case qr.OutcomeAccepted:
		return "accepted"
	case qr.OutcomeFraud:
		return "fraud"
	default:
		return "rejected"
	}
}

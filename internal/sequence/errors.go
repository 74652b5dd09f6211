package sequence

import "errors"

// Sentinel errors logged (not returned as sequence failures) when a
// suspension point runs out its budget without reaching the awaited
// condition — both are valid, expected outcomes, not faults.
var (
	// ErrQRWaitTimeout means no QR string arrived before SEQ3's 30 s
	// deadline; SEQ3 proceeds to reject the scan.
	ErrQRWaitTimeout = errors.New("sequence: qr wait timed out")

	// ErrSeq4RemovalTimeout means SEQ4's 120 s removal window elapsed with
	// a sensor still present; SEQ4 proceeds to SEQ5.
	ErrSeq4RemovalTimeout = errors.New("sequence: seq4 removal wait timed out")
)

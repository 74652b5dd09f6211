// Package sequence implements the kiosk's protocol-driven state machine:
// SEQ1 (activation) through SEQ5 (recovery), the two mode gates that
// suppress event-driven sequences, and the per-cycle completion flags that
// decide when SEQ4 (storage) auto-triggers.
//
// Engine is driven by a single caller on a single goroutine — matching the
// single-threaded cooperative tick loop in internal/kiosk — so sequences
// never run concurrently with each other. SEQ4 additionally carries a
// re-entrancy guard that evaluateAutoTriggers checks before starting it.
package sequence

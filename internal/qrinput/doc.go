// Package qrinput reads completed QR scans from the kiosk's USB scanner.
//
// The scanner is treated as a line-oriented input device (keyboard-wedge or
// CDC-ACM — both deliver newline-terminated text), so scancode decoding
// stays out of scope. Completed scans are handed to the sequence engine
// through a single-slot channel: the engine either sees the whole string or
// nothing, and a scan arriving while an earlier one is still unconsumed
// displaces it.
package qrinput

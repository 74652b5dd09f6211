// Package protocol implements the wire format and link-layer rules for
// talking to the kiosk's microcontroller over a serial connection.
//
// Frames are fixed-layout: a start byte, a type byte, an id byte, a
// one-byte payload length, the payload, and an end byte. Encode/Decode
// implement this codec; ExtractFrames pulls complete frames out of a byte
// stream that may contain partial frames or noise.
//
// Link drives the protocol's request/ack discipline: every outbound frame
// is assigned an id from a single counter that wraps at 99, and
// WaitForAck/WaitForAckOrSensor block for a matching reply without
// re-entering the frame dispatcher — a frame that arrives while waiting
// and isn't the expected ACK (or, for WaitForAckOrSensor, a sensor change)
// is dropped, not queued.
package protocol

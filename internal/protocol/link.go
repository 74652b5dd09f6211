package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/logging"
	"go.bug.st/serial"
)

const (
	// defaultAckTimeout is how long WaitForAck blocks for a matching ACK
	// before giving up, per the sequence engine's 5-second ACK budget.
	defaultAckTimeout = 5 * time.Second

	readBufferSize = 256

	// receivePollInterval bounds how long Receive blocks on a single read
	// before re-checking ctx, so cancellation is noticed promptly.
	receivePollInterval = 250 * time.Millisecond
)

// ErrAckTimeout is returned by WaitForAck/WaitForAckOrSensor when no
// matching ACK arrives before the deadline.
var ErrAckTimeout = errors.New("protocol: ack timeout")

// Port is the subset of go.bug.st/serial.Port the link layer uses. It lets
// tests substitute an in-memory pipe for the real serial device.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Open opens the named serial port at the given baud rate, 8-N-1, no flow
// control — the framing the MCU firmware expects.
func Open(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("protocol: open %s: %w", name, err)
	}
	return port, nil
}

// Link is the serial link to the kiosk's microcontroller. It owns the
// outbound id counter and the inbound byte stream, and implements the
// send/receive/wait-for-ack discipline the MCU firmware expects.
//
// Link is not safe for concurrent Send/Receive calls — the sequence engine
// drives it from a single goroutine, matching the non-reentrant rule below.
type Link struct {
	port Port
	log  *logging.Logger

	mu     sync.Mutex
	nextID int

	buf []byte
	// pending holds frames decoded by an earlier read but not yet returned.
	pending []Frame
}

// NewLink wraps an already-open port.
func NewLink(port Port, log *logging.Logger) *Link {
	return &Link{port: port, log: log}
}

// Close releases the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}

// allocID returns the next outbound frame id, wrapping 0..99.
func (l *Link) allocID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	if l.nextID > MaxID {
		l.nextID = 0
	}
	return id
}

// Send writes f to the wire, assigning it the next outbound id, and returns
// the id assigned so the caller can match the eventual ACK.
func (l *Link) Send(typ MessageType, payload []byte) (Frame, error) {
	f := Frame{Type: typ, ID: l.allocID(), Payload: payload}
	encoded, err := Encode(f)
	if err != nil {
		return Frame{}, err
	}
	if _, err := l.port.Write(encoded); err != nil {
		return Frame{}, fmt.Errorf("protocol: write: %w", err)
	}
	return f, nil
}

// SendAck acknowledges orig.
func (l *Link) SendAck(orig Frame) error {
	encoded, err := Encode(NewACK(orig))
	if err != nil {
		return err
	}
	if _, err := l.port.Write(encoded); err != nil {
		return fmt.Errorf("protocol: write ack: %w", err)
	}
	return nil
}

// Receive blocks until a frame is available, or ctx is done, and returns
// one frame per call; further frames decoded from the same read are kept
// and returned by later calls. Frames that fail to decode are logged and
// skipped; Receive keeps reading until a valid frame arrives or the context
// expires.
func (l *Link) Receive(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		if err := l.port.SetReadTimeout(receivePollInterval); err != nil {
			return Frame{}, fmt.Errorf("protocol: set read timeout: %w", err)
		}

		frames, invalid, err := l.readAvailable()
		if err != nil {
			return Frame{}, err
		}
		if invalid > 0 {
			l.log.Warn("dropped malformed frame(s)", "count", invalid)
		}
		if len(frames) > 0 {
			l.pending = frames[1:]
			return frames[0], nil
		}
	}
}

// readAvailable does one blocking read and extracts whatever complete
// frames it contains, holding any partial trailing bytes in l.buf for the
// next call. Frames still pending from an earlier read are returned first,
// without reading.
func (l *Link) readAvailable() ([]Frame, int, error) {
	if len(l.pending) > 0 {
		frames := l.pending
		l.pending = nil
		return frames, 0, nil
	}
	chunk := make([]byte, readBufferSize)
	n, err := l.port.Read(chunk)
	if err != nil {
		return nil, 0, fmt.Errorf("protocol: read: %w", err)
	}
	l.buf = append(l.buf, chunk[:n]...)

	frames, remainder, invalid := ExtractFrames(l.buf)
	l.buf = remainder
	return frames, invalid, nil
}

// WaitForAck blocks until the ACK for (typ, id) arrives or timeout elapses.
// Frames that are not that ACK are acknowledged, logged at debug, and
// dropped: this call never re-enters the dispatcher, so a sequence step
// waiting on its ACK can never start a nested sequence. Any business frame
// arriving while waiting is lost and must be re-requested by the caller if
// needed.
func (l *Link) WaitForAck(ctx context.Context, typ MessageType, id int, timeout time.Duration) error {
	_, err := l.waitForAckOrSensor(ctx, typ, id, timeout, false)
	return err
}

// WaitForAckOrSensor blocks until either the ACK for (typ, id) or a
// TypeSensorStateChange frame arrives, whichever comes first. It returns
// the sensor frame if that is what ended the wait, or a zero Frame if the
// ACK arrived first.
func (l *Link) WaitForAckOrSensor(ctx context.Context, typ MessageType, id int, timeout time.Duration) (Frame, error) {
	return l.waitForAckOrSensor(ctx, typ, id, timeout, true)
}

func (l *Link) waitForAckOrSensor(ctx context.Context, typ MessageType, id int, timeout time.Duration, acceptSensor bool) (Frame, error) {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, ErrAckTimeout
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		if err := l.port.SetReadTimeout(remaining); err != nil {
			return Frame{}, fmt.Errorf("protocol: set read timeout: %w", err)
		}

		frames, invalid, err := l.readAvailable()
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			return Frame{}, err
		}
		if invalid > 0 {
			l.log.Warn("dropped malformed frame(s) while waiting for ack", "count", invalid)
		}

		for _, f := range frames {
			if IsACKFor(f, typ, id) {
				return Frame{}, nil
			}
			if f.Type != TypeACK {
				if err := l.SendAck(f); err != nil {
					return Frame{}, fmt.Errorf("protocol: ack unrelated frame: %w", err)
				}
			}
			if acceptSensor && f.Type == TypeSensorStateChange {
				return f, nil
			}
			l.log.Debug("acked and dropped unrelated frame while waiting for ack", "type", f.Type, "id", f.ID)
		}
	}
}

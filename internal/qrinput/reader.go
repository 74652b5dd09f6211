package qrinput

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/logging"
)

// reopenDelay is how long Run waits before reopening the device after an
// open failure or read error — scanners enumerate late at boot and drop off
// the bus when unplugged.
const reopenDelay = 2 * time.Second

// maxScanLength guards against a wedged device streaming garbage; a QR URL
// for this system is well under this.
const maxScanLength = 512

// Reader reads newline-terminated scans from the device at path and
// publishes them on the channel returned by Scans.
type Reader struct {
	path  string
	audit *audit.Logger
	log   *logging.Logger

	scans chan string

	// openDevice is swapped in tests for an in-memory reader.
	openDevice func(path string) (io.ReadCloser, error)
}

// New returns a Reader for the device at path.
func New(path string, auditLogger *audit.Logger, log *logging.Logger) *Reader {
	return &Reader{
		path:  path,
		audit: auditLogger,
		log:   log,
		scans: make(chan string, 1),
		openDevice: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Scans is the single-slot hand-off the sequence engine consumes from
// while waiting for a QR.
func (r *Reader) Scans() <-chan string {
	return r.scans
}

// Run blocks reading the device until ctx is done, reopening it after
// errors. It always returns nil on cancellation so an errgroup supervising
// it doesn't treat shutdown as a failure.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		device, err := r.openDevice(r.path)
		if err != nil {
			r.log.Warn("qr scanner open failed, retrying", "path", r.path, "error", err)
			if !sleepCtx(ctx, reopenDelay) {
				return nil
			}
			continue
		}

		r.readLines(ctx, device)
		device.Close() //nolint:errcheck // device is being discarded either way

		if ctx.Err() != nil {
			return nil
		}
		if !sleepCtx(ctx, reopenDelay) {
			return nil
		}
	}
}

// readLines consumes the device until a read error or cancellation. The
// blocking read is unwound on shutdown by closing the device from a side
// goroutine.
func (r *Reader) readLines(ctx context.Context, device io.ReadCloser) {
	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			device.Close() //nolint:errcheck // unblocks the scanner below
		case <-closed:
		}
	}()
	defer close(closed)

	scanner := bufio.NewScanner(device)
	scanner.Buffer(make([]byte, maxScanLength), maxScanLength)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.publish(ctx, line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		r.log.Warn("qr scanner read error", "path", r.path, "error", err)
	}
}

// publish audits the raw scan and places it in the hand-off slot, displacing
// any scan the engine never consumed — only the newest scan is meaningful
// once the user has presented a second label.
func (r *Reader) publish(ctx context.Context, scan string) {
	r.audit.ContainerScanned(ctx, scan)

	select {
	case r.scans <- scan:
		return
	default:
	}

	select {
	case stale := <-r.scans:
		r.log.Warn("unconsumed qr scan displaced", "stale", stale)
	default:
	}
	select {
	case r.scans <- scan:
	default:
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

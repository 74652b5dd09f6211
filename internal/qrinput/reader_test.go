package qrinput

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/store"
)

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*store.AuditLogEntry
}

func (r *fakeAuditRepo) Create(ctx context.Context, e *store.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// blockingReader yields its lines then blocks until closed, like a device
// with no further scans.
type blockingReader struct {
	io.Reader
	done chan struct{}
	once sync.Once
}

func newBlockingReader(lines string) *blockingReader {
	return &blockingReader{Reader: strings.NewReader(lines), done: make(chan struct{})}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	if err == io.EOF {
		<-b.done
		return 0, io.EOF
	}
	return n, err
}

func (b *blockingReader) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func newTestReader(t *testing.T, device io.ReadCloser) (*Reader, *fakeAuditRepo) {
	t.Helper()
	repo := &fakeAuditRepo{}
	r := New("/dev/test-scanner", audit.New(repo, logging.Default()), logging.Default())
	r.openDevice = func(path string) (io.ReadCloser, error) { return device, nil }
	return r, repo
}

func TestReader_DeliversCompletedScans(t *testing.T) {
	device := newBlockingReader("https://paka.eco/QR/ABCDEF/AAAAAA\n")
	r, repo := newTestReader(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx) //nolint:errcheck // returns nil on cancel

	select {
	case scan := <-r.Scans():
		if scan != "https://paka.eco/QR/ABCDEF/AAAAAA" {
			t.Errorf("scan = %q, want the full URL", scan)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no scan delivered")
	}

	if repo.count() != 1 {
		t.Errorf("audit entries = %d, want 1", repo.count())
	}
}

func TestReader_NewestScanDisplacesStale(t *testing.T) {
	device := newBlockingReader("STALE-SCAN\nhttps://paka.eco/QR/ABCDEF/AAAAAA\n")
	r, _ := newTestReader(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx) //nolint:errcheck // returns nil on cancel

	// Nobody consumes the first scan; the second must displace it.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case scan := <-r.Scans():
			if scan == "STALE-SCAN" {
				continue // raced the displacement; the newer scan follows
			}
			if scan != "https://paka.eco/QR/ABCDEF/AAAAAA" {
				t.Fatalf("scan = %q, want the newest scan", scan)
			}
			return
		case <-deadline:
			t.Fatal("newest scan never delivered")
		}
	}
}

func TestReader_BlankLinesIgnored(t *testing.T) {
	device := newBlockingReader("\n\n  \nREAL-SCAN\n")
	r, repo := newTestReader(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx) //nolint:errcheck // returns nil on cancel

	select {
	case scan := <-r.Scans():
		if scan != "REAL-SCAN" {
			t.Errorf("scan = %q, want REAL-SCAN", scan)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no scan delivered")
	}

	if repo.count() != 1 {
		t.Errorf("audit entries = %d, want 1 (blank lines not audited)", repo.count())
	}
}

func TestReader_StopsOnCancel(t *testing.T) {
	device := newBlockingReader("")
	r, _ := newTestReader(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

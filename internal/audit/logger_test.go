package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/store"
)

type fakeRepo struct {
	entries  []store.AuditLogEntry
	failNext bool
}

func (f *fakeRepo) Create(_ context.Context, e *store.AuditLogEntry) error {
	if f.failNext {
		f.failNext = false
		return errors.New("write failed")
	}
	f.entries = append(f.entries, *e)
	return nil
}

func newTestLogger() (*Logger, *fakeRepo) {
	repo := &fakeRepo{}
	return New(repo, logging.Default()), repo
}

func TestLogger_ContainerValidated(t *testing.T) {
	l, repo := newTestLogger()
	l.ContainerValidated(context.Background(), "c-1", false)

	if len(repo.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Kind != store.KindReturnValid {
		t.Errorf("Kind = %v, want RETURN_VALID", e.Kind)
	}
	if e.ContainerID == nil || *e.ContainerID != "c-1" {
		t.Errorf("ContainerID = %v, want c-1", e.ContainerID)
	}
	if e.IsOfflineAction {
		t.Error("expected IsOfflineAction = false")
	}
}

func TestLogger_SyncFailed_MarksOffline(t *testing.T) {
	l, repo := newTestLogger()
	l.SyncFailed(context.Background(), errors.New("connection refused"))

	if len(repo.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(repo.entries))
	}
	if !repo.entries[0].IsOfflineAction {
		t.Error("expected SyncFailed to record IsOfflineAction = true")
	}
	if repo.entries[0].Kind != store.KindError {
		t.Errorf("Kind = %v, want ERROR", repo.entries[0].Kind)
	}
}

func TestLogger_SecurityEvent(t *testing.T) {
	l, repo := newTestLogger()
	l.SecurityEvent(context.Background(), "HMAC mismatch", map[string]any{"code": "ABC123"})

	if len(repo.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(repo.entries))
	}
	if repo.entries[0].Kind != store.KindError {
		t.Errorf("Kind = %v, want ERROR", repo.entries[0].Kind)
	}
}

func TestLogger_RepositoryFailureDoesNotPanic(t *testing.T) {
	l, repo := newTestLogger()
	repo.failNext = true

	l.Startup(context.Background(), "1.0.0")

	if len(repo.entries) != 0 {
		t.Errorf("expected no entry recorded when the store write fails, got %d", len(repo.entries))
	}
}

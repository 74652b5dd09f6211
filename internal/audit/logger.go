// Package audit categorizes every notable kiosk event into one of four
// kinds and records it both to the persistent audit_log table and to the
// structured process logger.
package audit

import (
	"context"
	"fmt"

	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/store"
)

// Repository is the persistence dependency audit.Logger needs; satisfied
// by *store.AuditLogRepository.
type Repository interface {
	Create(ctx context.Context, e *store.AuditLogEntry) error
}

// Logger records audit events. It never fails the caller's operation: a
// store write failure is logged to the process logger and swallowed,
// because losing an audit row must never abort the sequence in flight.
type Logger struct {
	repo Repository
	log  *logging.Logger
}

// New returns a Logger backed by repo, emitting process logs through log.
func New(repo Repository, log *logging.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

func (l *Logger) record(ctx context.Context, kind store.Kind, offline bool, containerID *string, format string, args ...any) {
	description := fmt.Sprintf(format, args...)
	entry := &store.AuditLogEntry{
		Kind:            kind,
		Description:     description,
		IsOfflineAction: offline,
		ContainerID:     containerID,
	}

	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Error("audit log write failed", "error", err, "description", description)
	}

	if kind == store.KindError || kind == store.KindReturnInvalid {
		l.log.Error(description, "kind", kind, "offline", offline)
	} else {
		l.log.Info(description, "kind", kind, "offline", offline)
	}
}

// Startup records the controller coming up.
func (l *Logger) Startup(ctx context.Context, version string) {
	l.record(ctx, store.KindInfo, false, nil, "kiosk controller starting (version %s)", version)
}

// Shutdown records a cooperative shutdown.
func (l *Logger) Shutdown(ctx context.Context) {
	l.record(ctx, store.KindInfo, false, nil, "kiosk controller shutting down")
}

// DatabaseInitFailed records a fatal store initialization failure.
func (l *Logger) DatabaseInitFailed(ctx context.Context, err error) {
	l.record(ctx, store.KindError, false, nil, "database initialization failed: %v", err)
}

// LinkConnected records the serial link coming up.
func (l *Logger) LinkConnected(ctx context.Context, port string) {
	l.record(ctx, store.KindInfo, false, nil, "serial link connected on %s", port)
}

// LinkConnectFailed records a fatal link-open failure.
func (l *Logger) LinkConnectFailed(ctx context.Context, port string, err error) {
	l.record(ctx, store.KindError, false, nil, "serial link connect failed on %s: %v", port, err)
}

// SyncStarted records the beginning of a backend sync.
func (l *Logger) SyncStarted(ctx context.Context, offline bool) {
	l.record(ctx, store.KindInfo, offline, nil, "backend sync started")
}

// SyncSucceeded records a completed sync with the container and log counts
// exchanged.
func (l *Logger) SyncSucceeded(ctx context.Context, containers, logs int) {
	l.record(ctx, store.KindInfo, false, nil, "backend sync succeeded (containers=%d logs=%d)", containers, logs)
}

// SyncFailed records a sync attempt that could not reach the backend. This
// is always an offline action: the controller keeps running on local state.
func (l *Logger) SyncFailed(ctx context.Context, err error) {
	l.record(ctx, store.KindError, true, nil, "backend sync failed: %v", err)
}

// ContainerScanned records a raw QR scan before validation.
func (l *Logger) ContainerScanned(ctx context.Context, code string) {
	l.record(ctx, store.KindInfo, false, nil, "QR code scanned: %s", code)
}

// ContainerValidated records a successfully validated, returnable container.
func (l *Logger) ContainerValidated(ctx context.Context, containerID string, offline bool) {
	l.record(ctx, store.KindReturnValid, offline, &containerID, "container %s validated for return", containerID)
}

// ContainerRejected records a QR code that failed cryptographic validation.
func (l *Logger) ContainerRejected(ctx context.Context, code string, reason string) {
	l.record(ctx, store.KindReturnInvalid, false, nil, "QR code %s rejected: %s", code, reason)
}

// ContainerExpired records a scan against a container past its due date.
func (l *Logger) ContainerExpired(ctx context.Context, containerID string) {
	l.record(ctx, store.KindReturnInvalid, false, &containerID, "container %s rejected: past due date", containerID)
}

// ContainerNotReturnable records a scan against a container the backend has
// marked as not returnable.
func (l *Logger) ContainerNotReturnable(ctx context.Context, containerID string, offline bool) {
	l.record(ctx, store.KindReturnInvalid, offline, &containerID, "container %s rejected: not returnable", containerID)
}

// ContainerNotFound records a scan whose code matched no known container.
func (l *Logger) ContainerNotFound(ctx context.Context, code string, offline bool) {
	l.record(ctx, store.KindReturnInvalid, offline, nil, "container for code %s not found", code)
}

// SequenceStarted records the start of one of SEQ1-SEQ5.
func (l *Logger) SequenceStarted(ctx context.Context, name string) {
	l.record(ctx, store.KindInfo, false, nil, "sequence %s started", name)
}

// SequenceCompleted records a sequence reaching its success state.
func (l *Logger) SequenceCompleted(ctx context.Context, name string) {
	l.record(ctx, store.KindInfo, false, nil, "sequence %s completed", name)
}

// SequenceFailed records a sequence aborting, e.g. on ACK timeout.
func (l *Logger) SequenceFailed(ctx context.Context, name string, err error) {
	l.record(ctx, store.KindError, false, nil, "sequence %s failed: %v", name, err)
}

// HardwareStatus records a routine hardware status update.
func (l *Logger) HardwareStatus(ctx context.Context, description string) {
	l.record(ctx, store.KindInfo, false, nil, "hardware status: %s", description)
}

// HardwareError records an unrecoverable hardware fault (e.g. item stuck),
// distinct from an ordinary command failure handled within a sequence.
func (l *Logger) HardwareError(ctx context.Context, description string) {
	l.record(ctx, store.KindError, false, nil, "hardware error: %s", description)
}

// ModeTransition records a change to one of the two mode gates.
func (l *Logger) ModeTransition(ctx context.Context, gate string, active bool) {
	l.record(ctx, store.KindInfo, false, nil, "mode transition: %s = %t", gate, active)
}

// ConfigurationChange records a runtime configuration change (e.g. a value
// pushed by the backend sync response).
func (l *Logger) ConfigurationChange(ctx context.Context, description string) {
	l.record(ctx, store.KindInfo, false, nil, "configuration changed: %s", description)
}

// Cleanup records routine housekeeping (e.g. audit log pruning after sync).
func (l *Logger) Cleanup(ctx context.Context, description string) {
	l.record(ctx, store.KindInfo, false, nil, "cleanup: %s", description)
}

// SecurityEvent records a fraud or tamper indication, with a details map
// folded into the description for the audit trail.
func (l *Logger) SecurityEvent(ctx context.Context, description string, details map[string]any) {
	l.record(ctx, store.KindError, false, nil, "security event: %s %v", description, details)
}

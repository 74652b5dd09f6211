package syncsvc

import (
	"context"
	"errors"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/backend"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/store"
	"github.com/paka-eco/kiosk-controller/internal/telemetry"
)

// secureModeThreshold is how long the backend may be unreachable before the
// watchdog requests secure mode.
const secureModeThreshold = 48 * time.Hour

// ErrSyncRejected is returned internally when the backend answered a sync
// but flagged it unsuccessful.
var ErrSyncRejected = errors.New("syncsvc: backend rejected sync")

// Backend is the subset of the backend client the service calls.
type Backend interface {
	Healthcheck(ctx context.Context, version string, updateFailures int) (backend.HealthcheckResult, error)
	Sync(ctx context.Context, logs []backend.SyncLogEntry, containers []backend.SyncContainer) (backend.SyncResult, error)
}

// ContainerStore is the subset of *store.ContainerRepository the service
// uses.
type ContainerStore interface {
	ListSince(ctx context.Context, ts time.Time) ([]store.Container, error)
	ReplaceAll(ctx context.Context, containers []store.Container, updatedAt time.Time) error
}

// DeviceStatusStore is the subset of *store.DeviceStatusRepository the
// service uses.
type DeviceStatusStore interface {
	Get(ctx context.Context) (*store.DeviceStatus, error)
	Update(ctx context.Context, u store.DeviceStatusUpdate) error
}

// AuditLogStore is the subset of *store.AuditLogRepository the service uses.
type AuditLogStore interface {
	ListSince(ctx context.Context, ts time.Time) ([]store.AuditLogEntry, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// Config holds the service's cadences and the identity it reports.
type Config struct {
	Version           string
	HealthcheckPeriod time.Duration
	SyncPeriod        time.Duration
}

// Service drives the healthcheck and sync cadences from a single time
// pulse. It is called from the tick loop's goroutine only and is not safe
// for concurrent use.
type Service struct {
	cfg        Config
	backend    Backend
	containers ContainerStore
	status     DeviceStatusStore
	auditLogs  AuditLogStore
	audit      *audit.Logger
	log        *logging.Logger
	telemetry  *telemetry.Client

	onDeviceActive func(ctx context.Context, active bool)
	onSecureMode   func(ctx context.Context, secure bool)

	now func() time.Time

	initialSyncDone bool
	lastHealthcheck time.Time
	lastSync        time.Time
}

// New returns a Service. onDeviceActive and onSecureMode are the one-way
// mode-change sinks into the sequence engine; either may be nil.
func New(cfg Config, be Backend, containers ContainerStore, status DeviceStatusStore, auditLogs AuditLogStore,
	auditLogger *audit.Logger, log *logging.Logger, tel *telemetry.Client,
	onDeviceActive, onSecureMode func(ctx context.Context, active bool)) *Service {
	return &Service{
		cfg:            cfg,
		backend:        be,
		containers:     containers,
		status:         status,
		auditLogs:      auditLogs,
		audit:          auditLogger,
		log:            log,
		telemetry:      tel,
		onDeviceActive: onDeviceActive,
		onSecureMode:   onSecureMode,
		now:            time.Now,
	}
}

// Tick runs whatever cadence work is due: the initial sync until it first
// succeeds, then the healthcheck and regular sync on their periods.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()

	if !s.initialSyncDone {
		s.initialSync(ctx, now)
	}

	if now.Sub(s.lastHealthcheck) >= s.cfg.HealthcheckPeriod {
		s.lastHealthcheck = now
		s.healthcheck(ctx, now)
	}

	if s.initialSyncDone && now.Sub(s.lastSync) >= s.cfg.SyncPeriod {
		s.lastSync = now
		s.regularSync(ctx, now)
	}
}

// initialSync replaces the local container catalog and clears the audit log
// from an empty-bodied sync. Until it succeeds it is retried on every tick;
// on success lastSync advances so a regular sync does not immediately
// follow.
func (s *Service) initialSync(ctx context.Context, now time.Time) {
	s.audit.SyncStarted(ctx, false)

	result, err := s.postSync(ctx, nil, nil)
	if err != nil {
		s.audit.SyncFailed(ctx, err)
		return
	}

	if err := s.auditLogs.DeleteAll(ctx); err != nil {
		s.log.Error("initial sync: clearing audit log failed", "error", err)
		return
	}
	if err := s.replaceCatalog(ctx, result.Containers, now); err != nil {
		s.log.Error("initial sync: replacing containers failed", "error", err)
		return
	}

	syncedAt := now
	if err := s.status.Update(ctx, store.DeviceStatusUpdate{LastSyncAt: ptrTo(&syncedAt)}); err != nil {
		s.log.Error("initial sync: persisting last_sync_at failed", "error", err)
	}

	s.initialSyncDone = true
	s.lastSync = now
	s.audit.SyncSucceeded(ctx, len(result.Containers), 0)
}

// healthcheck reports version and failure count, applies the response's
// active flag, clears secure mode on success, and always re-evaluates the
// secure-mode watchdog afterwards.
func (s *Service) healthcheck(ctx context.Context, now time.Time) {
	status, err := s.status.Get(ctx)
	if err != nil {
		s.log.Error("healthcheck: reading device status failed", "error", err)
		return
	}

	start := time.Now()
	result, err := s.backend.Healthcheck(ctx, s.cfg.Version, status.UpdateFailures)
	success := err == nil && result.Success
	s.telemetry.WriteBackendLatency("healthcheck", time.Since(start), success)

	if !success {
		failures := status.UpdateFailures + 1
		if uerr := s.status.Update(ctx, store.DeviceStatusUpdate{UpdateFailures: &failures}); uerr != nil {
			s.log.Error("healthcheck: persisting failure count failed", "error", uerr)
		}
		s.log.Warn("healthcheck failed", "error", err, "update_failures", failures)
		s.EvaluateSecureMode(ctx)
		return
	}

	seenAt := now
	zero := 0
	update := store.DeviceStatusUpdate{LastSeenAt: ptrTo(&seenAt), UpdateFailures: &zero}
	if status.Version != s.cfg.Version {
		update.Version = &s.cfg.Version
	}

	clearedSecure := status.IsInSafeMode
	if clearedSecure {
		off := false
		update.IsInSafeMode = &off
	}

	activeChanged := result.Active != nil && *result.Active != status.Active
	if activeChanged {
		update.Active = result.Active
	}

	if err := s.status.Update(ctx, update); err != nil {
		s.log.Error("healthcheck: persisting device status failed", "error", err)
		return
	}

	if clearedSecure && s.onSecureMode != nil {
		s.onSecureMode(ctx, false)
	}
	if activeChanged && s.onDeviceActive != nil {
		s.onDeviceActive(ctx, *result.Active)
	}

	s.EvaluateSecureMode(ctx)
}

// regularSync uploads containers and logs changed since the stored cutoff
// and applies the backend's authoritative catalog.
func (s *Service) regularSync(ctx context.Context, now time.Time) {
	status, err := s.status.Get(ctx)
	if err != nil {
		s.log.Error("sync: reading device status failed", "error", err)
		return
	}

	cutoff := time.Time{}
	if status.LastSyncAt != nil {
		cutoff = *status.LastSyncAt
	}
	// Captured before reading, so rows written mid-sync land after the next
	// cutoff instead of slipping through the gap.
	newSyncTime := now

	changed, err := s.containers.ListSince(ctx, cutoff)
	if err != nil {
		s.log.Error("sync: listing changed containers failed", "error", err)
		return
	}
	entries, err := s.auditLogs.ListSince(ctx, cutoff)
	if err != nil {
		s.log.Error("sync: listing audit logs failed", "error", err)
		return
	}

	logs := make([]backend.SyncLogEntry, 0, len(entries))
	logIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ContainerID == nil {
			continue
		}
		logs = append(logs, backend.SyncLogEntry{
			Type:            string(e.Kind),
			Description:     e.Description,
			IsOfflineAction: e.IsOfflineAction,
			ContainerID:     e.ContainerID,
			CreatedAt:       backend.FormatTimestamp(e.CreatedAt),
		})
		logIDs = append(logIDs, e.ID)
	}

	containers := make([]backend.SyncContainer, 0, len(changed))
	for _, c := range changed {
		containers = append(containers, backend.SyncContainer{
			ID:           c.ID,
			IsReturnable: c.IsReturnable,
			UpdatedAt:    backend.FormatTimestamp(c.UpdatedAt),
		})
	}

	s.audit.SyncStarted(ctx, false)
	result, err := s.postSync(ctx, logs, containers)
	if err != nil {
		s.audit.SyncFailed(ctx, err)
		return
	}

	for _, id := range logIDs {
		if err := s.auditLogs.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrAuditLogNotFound) {
			s.log.Error("sync: deleting synced audit log failed", "error", err, "id", id)
		}
	}
	if len(logIDs) > 0 {
		s.audit.Cleanup(ctx, "removed synced audit log entries")
	}

	if err := s.replaceCatalog(ctx, result.Containers, newSyncTime); err != nil {
		s.log.Error("sync: replacing containers failed", "error", err)
		return
	}

	syncedAt := newSyncTime
	if err := s.status.Update(ctx, store.DeviceStatusUpdate{LastSyncAt: ptrTo(&syncedAt)}); err != nil {
		s.log.Error("sync: persisting last_sync_at failed", "error", err)
	}

	s.audit.SyncSucceeded(ctx, len(result.Containers), len(logs))
}

// postSync issues one sync call, folding a semantic rejection into an error
// alongside transport failures: neither advances local state.
func (s *Service) postSync(ctx context.Context, logs []backend.SyncLogEntry, containers []backend.SyncContainer) (backend.SyncResult, error) {
	start := time.Now()
	result, err := s.backend.Sync(ctx, logs, containers)
	success := err == nil && result.Success
	s.telemetry.WriteBackendLatency("sync", time.Since(start), success)

	if err != nil {
		return backend.SyncResult{}, err
	}
	if !result.Success {
		return backend.SyncResult{}, ErrSyncRejected
	}
	return result, nil
}

// replaceCatalog converts the backend's container rows and swaps them in as
// the whole local set.
func (s *Service) replaceCatalog(ctx context.Context, synced []backend.SyncedContainer, updatedAt time.Time) error {
	containers := make([]store.Container, 0, len(synced))
	for _, sc := range synced {
		c := store.Container{
			ID:           sc.ID,
			QRCode:       sc.QRCode,
			IsReturnable: sc.IsReturnable,
			UpdatedAt:    updatedAt,
		}
		if sc.DueTime != nil {
			due, err := backend.ParseTimestamp(*sc.DueTime)
			if err != nil {
				s.log.Warn("sync: unparseable dueTime, stored without one", "error", err, "container_id", sc.ID)
			} else if !due.IsZero() {
				c.DueDate = &due
			}
		}
		containers = append(containers, c)
	}
	return s.containers.ReplaceAll(ctx, containers, updatedAt)
}

// EvaluateSecureMode is the watchdog: more than two days since the backend
// was last seen requests secure mode, anything less requests normal mode.
// The change is persisted and the callback fired only when the flag flips.
// Before the backend has ever been seen the watchdog stays quiet — there is
// no reference point to measure unreachability from.
func (s *Service) EvaluateSecureMode(ctx context.Context) {
	status, err := s.status.Get(ctx)
	if err != nil {
		s.log.Error("secure-mode watchdog: reading device status failed", "error", err)
		return
	}
	if status.LastSeenAt == nil {
		return
	}

	secure := s.now().Sub(*status.LastSeenAt) > secureModeThreshold
	if secure == status.IsInSafeMode {
		return
	}

	if err := s.status.Update(ctx, store.DeviceStatusUpdate{IsInSafeMode: &secure}); err != nil {
		s.log.Error("secure-mode watchdog: persisting flag failed", "error", err)
		return
	}
	s.log.Warn("secure-mode watchdog flipped", "secure", secure, "last_seen_at", *status.LastSeenAt)
	if s.onSecureMode != nil {
		s.onSecureMode(ctx, secure)
	}
}

// InitialSyncDone reports whether the startup sync has completed.
func (s *Service) InitialSyncDone() bool {
	return s.initialSyncDone
}

func ptrTo[T any](v T) *T {
	return &v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind categorizes an audit log entry.
type Kind string

// The four audit log kinds the sequence engine and sync service emit.
const (
	KindInfo          Kind = "INFO"
	KindError         Kind = "ERROR"
	KindReturnValid   Kind = "RETURN_VALID"
	KindReturnInvalid Kind = "RETURN_INVALID"
)

// ErrAuditLogNotFound is returned when an audit log lookup targets an id
// that does not exist.
var ErrAuditLogNotFound = errors.New("store: audit log entry not found")

// AuditLogEntry is one append-only audit trail event.
type AuditLogEntry struct {
	ID              string
	Kind            Kind
	Description     string
	IsOfflineAction bool
	ContainerID     *string
	CreatedAt       time.Time
}

// AuditLogRepository provides access to the audit_log table.
type AuditLogRepository struct {
	db *DB
}

// NewAuditLogRepository returns a repository backed by db.
func NewAuditLogRepository(db *DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create inserts an entry, generating an id and timestamp if unset.
//
// If the entry references a container and the foreign key check fails (the
// reference was deleted or never synced), the insert is retried once with
// the reference cleared and the description annotated: a
// reference that cannot be satisfied must not drop the audit trail entirely.
func (r *AuditLogRepository) Create(ctx context.Context, e *AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := r.insert(ctx, e)
	if err == nil {
		return nil
	}
	if !isForeignKeyError(err) || e.ContainerID == nil {
		return err
	}

	clearedDesc := e.Description
	clearedRef := e.ContainerID
	e.ContainerID = nil
	e.Description = fmt.Sprintf("%s (container reference %s cleared: no longer present)", clearedDesc, *clearedRef)

	if retryErr := r.insert(ctx, e); retryErr != nil {
		return fmt.Errorf("inserting audit log after clearing container reference: %w", retryErr)
	}
	return nil
}

func (r *AuditLogRepository) insert(ctx context.Context, e *AuditLogEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, type, description, is_offline_action, container_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Description, boolToInt(e.IsOfflineAction),
		nullableString(e.ContainerID), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// Get returns the audit log entry with the given id.
func (r *AuditLogRepository) Get(ctx context.Context, id string) (*AuditLogEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, type, description, is_offline_action, container_id, created_at
		 FROM audit_log WHERE id = ?`, id)
	return scanAuditLogEntry(row)
}

// ListSince returns entries created at or after ts, oldest first — the
// order the sync service batches them for upload.
func (r *AuditLogRepository) ListSince(ctx context.Context, ts time.Time) ([]AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, description, is_offline_action, container_id, created_at
		 FROM audit_log WHERE created_at >= ? ORDER BY created_at`, formatTime(ts))
	if err != nil {
		return nil, fmt.Errorf("querying audit log since %s: %w", ts, err)
	}
	defer rows.Close()
	return scanAuditLogEntries(rows)
}

// ListByKind returns entries of the given kind, most recent first.
func (r *AuditLogRepository) ListByKind(ctx context.Context, kind Kind) ([]AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, description, is_offline_action, container_id, created_at
		 FROM audit_log WHERE type = ? ORDER BY created_at DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying audit log by kind %s: %w", kind, err)
	}
	defer rows.Close()
	return scanAuditLogEntries(rows)
}

// Delete removes the entry with the given id.
func (r *AuditLogRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_log WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting audit log entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAuditLogNotFound
	}
	return nil
}

// DeleteBefore removes every entry created strictly before ts.
func (r *AuditLogRepository) DeleteBefore(ctx context.Context, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM audit_log WHERE created_at < ?", formatTime(ts)); err != nil {
		return fmt.Errorf("deleting audit log entries before %s: %w", ts, err)
	}
	return nil
}

// DeleteAll removes every audit log entry.
func (r *AuditLogRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM audit_log"); err != nil {
		return fmt.Errorf("deleting all audit log entries: %w", err)
	}
	return nil
}

func scanAuditLogEntry(scanner rowScanner) (*AuditLogEntry, error) {
	var e AuditLogEntry
	var kind string
	var isOffline int
	var containerID sql.NullString
	var createdAt string

	err := scanner.Scan(&e.ID, &kind, &e.Description, &isOffline, &containerID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditLogNotFound
		}
		return nil, fmt.Errorf("scanning audit log entry: %w", err)
	}

	e.Kind = Kind(kind)
	e.IsOfflineAction = isOffline != 0
	if containerID.Valid {
		e.ContainerID = &containerID.String
	}
	e.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}

func scanAuditLogEntries(rows *sql.Rows) ([]AuditLogEntry, error) {
	var entries []AuditLogEntry
	for rows.Next() {
		e, err := scanAuditLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log entries: %w", err)
	}
	return entries, nil
}

// isForeignKeyError reports whether err is a SQLite foreign key constraint
// violation, as opposed to any other insert failure.
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "foreign key constraint")
}

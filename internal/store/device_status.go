package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeviceStatus is the singleton row tracking this kiosk's health and mode.
type DeviceStatus struct {
	LastSyncAt     *time.Time
	LastSeenAt     *time.Time
	Version        string
	UpdateFailures int
	Active         bool
	IsInSafeMode   bool
}

// DeviceStatusUpdate carries a partial update; nil fields are left unchanged.
type DeviceStatusUpdate struct {
	LastSyncAt     **time.Time
	LastSeenAt     **time.Time
	Version        *string
	UpdateFailures *int
	Active         *bool
	IsInSafeMode   *bool
}

// DeviceStatusRepository provides access to the singleton device_status row.
type DeviceStatusRepository struct {
	db *DB
}

// NewDeviceStatusRepository returns a repository backed by db.
func NewDeviceStatusRepository(db *DB) *DeviceStatusRepository {
	return &DeviceStatusRepository{db: db}
}

// Get returns the device status row. The migration that creates the table
// also inserts the row, so this never returns sql.ErrNoRows in practice.
func (r *DeviceStatusRepository) Get(ctx context.Context) (*DeviceStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT last_sync_at, last_seen_at, version, update_failures, active, is_in_safe_mode
		 FROM device_status WHERE id = 1`)

	var s DeviceStatus
	var lastSyncAt, lastSeenAt sql.NullString
	var active, safeMode int

	err := row.Scan(&lastSyncAt, &lastSeenAt, &s.Version, &s.UpdateFailures, &active, &safeMode)
	if err != nil {
		return nil, fmt.Errorf("scanning device status: %w", err)
	}

	if lastSyncAt.Valid {
		t, err := parseTime(lastSyncAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_sync_at: %w", err)
		}
		s.LastSyncAt = &t
	}
	if lastSeenAt.Valid {
		t, err := parseTime(lastSeenAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen_at: %w", err)
		}
		s.LastSeenAt = &t
	}
	s.Active = active != 0
	s.IsInSafeMode = safeMode != 0

	return &s, nil
}

// Update applies a partial update to the singleton row.
func (r *DeviceStatusRepository) Update(ctx context.Context, u DeviceStatusUpdate) error {
	sets := []string{}
	args := []any{}

	if u.LastSyncAt != nil {
		sets = append(sets, "last_sync_at = ?")
		args = append(args, nullableTime(*u.LastSyncAt))
	}
	if u.LastSeenAt != nil {
		sets = append(sets, "last_seen_at = ?")
		args = append(args, nullableTime(*u.LastSeenAt))
	}
	if u.Version != nil {
		sets = append(sets, "version = ?")
		args = append(args, *u.Version)
	}
	if u.UpdateFailures != nil {
		sets = append(sets, "update_failures = ?")
		args = append(args, *u.UpdateFailures)
	}
	if u.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, boolToInt(*u.Active))
	}
	if u.IsInSafeMode != nil {
		sets = append(sets, "is_in_safe_mode = ?")
		args = append(args, boolToInt(*u.IsInSafeMode))
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE device_status SET " + joinSets(sets) + " WHERE id = 1"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return nil
}

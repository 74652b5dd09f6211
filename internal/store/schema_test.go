package store

import (
	"context"
	"testing"
)

// applyTestSchema creates the containers, device_status, and audit_log
// tables directly, without going through the embedded migrations (which
// live in the separate migrations package to avoid an import cycle).
func applyTestSchema(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`CREATE TABLE containers (
			id TEXT PRIMARY KEY,
			qr_code TEXT NOT NULL UNIQUE,
			is_returnable INTEGER NOT NULL DEFAULT 1,
			due_date TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE device_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_sync_at TEXT,
			last_seen_at TEXT,
			version TEXT NOT NULL DEFAULT '',
			update_failures INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			is_in_safe_mode INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT INTO device_status (id, version, update_failures, active, is_in_safe_mode)
		 VALUES (1, '', 0, 1, 0)`,
		`CREATE TABLE audit_log (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL CHECK (type IN ('INFO', 'ERROR', 'RETURN_VALID', 'RETURN_INVALID')),
			description TEXT NOT NULL,
			is_offline_action INTEGER NOT NULL DEFAULT 0,
			container_id TEXT REFERENCES containers (id) ON DELETE SET NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("applying test schema: %v", err)
		}
	}
}

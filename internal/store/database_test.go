package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB creates a temporary database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func TestOpen_CreatesFileAndDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "kiosk.db")

	db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping test when running as root")
	}

	readonly := filepath.Join(t.TempDir(), "readonly")
	if err := os.Mkdir(readonly, 0500); err != nil {
		t.Fatalf("failed to create readonly dir: %v", err)
	}

	_, err := Open(Config{
		Path:        filepath.Join(readonly, "subdir", "kiosk.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err == nil {
		t.Fatal("Open() should fail for an unwritable directory")
	}
	if !strings.Contains(err.Error(), "creating database directory") {
		t.Errorf("expected 'creating database directory' error, got: %v", err)
	}
}

func TestClose_NilHandleIsSafe(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil handle error = %v", err)
	}
}

// TestOpen_ForeignKeysEnforced verifies the pragma the audit log's
// clear-and-retry path depends on: a dangling container reference must
// fail the insert rather than silently storing a broken link.
func TestOpen_ForeignKeysEnforced(t *testing.T) {
	db := newTestStore(t)
	defer db.Close() //nolint:errcheck // test cleanup
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (id, type, description, is_offline_action, container_id, created_at)
		 VALUES ('e1', 'INFO', 'x', 0, 'no-such-container', '2026-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatal("insert with dangling container reference succeeded, want FK violation")
	}
	if !isForeignKeyError(err) {
		t.Errorf("error = %v, want a foreign key violation", err)
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// openPingTimeout bounds the connectivity check at startup; a store
	// that cannot answer within this is a fatal init failure.
	openPingTimeout = 5 * time.Second
)

// DB is the kiosk's SQLite store, holding the container catalog, the
// singleton device-status row, and the audit log. The embedded *sql.DB
// carries the query surface; the repositories in this package own the SQL.
type DB struct {
	*sql.DB
}

// Config is the database section of the controller's configuration.
type Config struct {
	// Path is the SQLite file, from DATABASE_URL. Its directory is created
	// on first run.
	Path string

	// WALMode enables write-ahead logging so the validator's reads during
	// a sync-service write don't block.
	WALMode bool

	// BusyTimeout is how long a statement waits on a lock, in seconds.
	BusyTimeout int
}

// Open opens (creating if needed) the store at cfg.Path and verifies it
// with a ping.
//
// Foreign keys are always enforced: the audit log's container reference
// and its clear-and-retry path depend on the constraint firing. The pool
// is pinned to a single connection, matching both SQLite's single-writer
// model and the tick loop's single-writer discipline.
func Open(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB}

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the failure path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Owner read/write only. SQLite has created the file by the time the
	// ping returns.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // advisory tightening

	return db, nil
}

// Close releases the connection. Safe to call with a nil handle, as the
// shutdown path may run after a failed Open.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

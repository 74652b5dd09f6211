// Package store provides the kiosk controller's SQLite persistence layer.
//
// It manages:
//   - A single WAL-mode SQLite connection with a busy timeout, tuned for
//     SQLite's single-writer model
//   - Schema migrations, applied transactionally and tracked in
//     schema_migrations
//   - Typed CRUD access to the three tables the sequence engine and sync
//     service depend on: containers, device_status, and audit_log
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := store.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	containers := store.NewContainerRepository(db)
package store

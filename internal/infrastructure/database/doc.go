// Package database provides the SQLite connection used for the command
// history audit trail.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Forward and rollback schema migrations read from an fs.FS
//   - Health checks for the /health endpoint
//
// The connection pool is pinned to a single connection: SQLite has one
// writer, and an in-memory database (Path ":memory:") only lives as long as
// its connection.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database

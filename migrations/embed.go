// Package migrations embeds the SQLite schema for the command history.
package migrations

import "embed"

// FS holds the migration files at its root.
//
//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// FS contains embedded SQLite migrations for quest storage.
//
//go:embed *.sql
var FS embed.FS

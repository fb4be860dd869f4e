// Package migrations embeds the goose SQL migration files that define the
// local SQLite schema: the replicated business tables, the sync_metadata
// ledger, vector_clocks, and sync_config.
package migrations

import "embed"

// FS is the embedded filesystem of migration files, consumed by
// internal/store.RunMigrations via goose.SetBaseFS.
//
//go:embed *.sql
var FS embed.FS

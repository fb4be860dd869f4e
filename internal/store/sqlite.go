// Package store owns the local SQLite database: schema migrations, the
// append-only change ledger, per-device vector clock and sync_config rows,
// and the generic upsert/delete replay path used when applying a remote
// delta or restoring a snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the local, on-disk half of the sync engine. One instance
// owns one SQLite file and one device identity.
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	deviceID string
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at
// dbPath, applies pragmas, and runs migrations. deviceID identifies this
// install in the change ledger and vector clock.
func NewSQLiteStore(dbPath, deviceID string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to a single connection so every
	// query sees the same database (each :memory: connection is its own DB).
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: dbPath, deviceID: deviceID}

	if err := store.ensureDeviceID(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure device id: %w", err)
	}

	return store, nil
}

// enablePragmas sets SQLite pragmas for durability and concurrent access
// from the CLI, the scheduler, and the mobile background worker.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// DeviceID returns this store's device identity.
func (s *SQLiteStore) DeviceID() string {
	return s.deviceID
}

// DB exposes the underlying *sql.DB for callers (mainly tests) that need
// to seed or inspect rows directly, exercising the change-capture triggers.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ensureDeviceID seeds sync_config's device_id key on first run, and
// verifies it matches the configured deviceID on subsequent runs.
func (s *SQLiteStore) ensureDeviceID(ctx context.Context) error {
	existing, ok, err := s.GetSyncConfig(ctx, syncConfigKeyDeviceID)
	if err != nil {
		return err
	}
	if !ok {
		return s.SetSyncConfig(ctx, syncConfigKeyDeviceID, s.deviceID)
	}
	if existing != "" && existing != s.deviceID {
		s.deviceID = existing
	}
	return nil
}

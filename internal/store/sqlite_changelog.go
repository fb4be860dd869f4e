package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// sync_config keys used for bootstrap/administrative state. Per-device
// bucket settings (endpoint, bucket, credentials, enabled flag) live under
// these same keys so a single kv table backs both "is sync configured" and
// "where does sync upload to" questions.
const (
	syncConfigKeyDeviceID         = "device_id"
	syncConfigKeySyncEnabled      = "sync_enabled"
	syncConfigKeyApplyInProgress  = "apply_in_progress"
	syncConfigKeyLastCompactionAt = "last_compaction_at"
)

// ChangeLogEntry is one row captured by the sync_metadata ledger, written
// by an AFTER INSERT/UPDATE/DELETE trigger on a replicated table.
type ChangeLogEntry struct {
	ID        int64
	TableName string
	RecordID  string
	Operation string
	Payload   json.RawMessage
	Synced    bool
	CreatedAt time.Time
}

// GetChangeLogAfter returns unsynced sync_metadata rows with id > afterID,
// up to limit, ordered by id ascending — the exact order they must be
// applied on another device to preserve per-row write order.
func (s *SQLiteStore) GetChangeLogAfter(ctx context.Context, afterID int64, limit int) ([]ChangeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, record_id, operation, payload, synced, created_at
		FROM sync_metadata
		WHERE id > ? AND synced = 0
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync_metadata: %w", err)
	}
	defer rows.Close()

	entries := make([]ChangeLogEntry, 0)
	for rows.Next() {
		var e ChangeLogEntry
		var payload sql.NullString
		var synced int
		var createdAt string

		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Operation, &payload, &synced, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sync_metadata row: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Synced = synced != 0
		if parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			e.CreatedAt = parsed
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLatestSequence returns the highest id in sync_metadata, 0 if empty.
func (s *SQLiteStore) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM sync_metadata`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// MarkSynced flags every sync_metadata row with id <= uptoID as synced, so
// a subsequent CollectLocalDelta skips what's already been uploaded.
func (s *SQLiteStore) MarkSynced(ctx context.Context, uptoID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_metadata SET synced = 1 WHERE id <= ? AND synced = 0
	`, uptoID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// GetSyncConfig reads a key from the sync_config kv table. ok is false
// when the key has never been set.
func (s *SQLiteStore) GetSyncConfig(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM sync_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get sync_config %q: %w", key, err)
	}
	return value, true, nil
}

// SetSyncConfig upserts a sync_config key/value pair.
func (s *SQLiteStore) SetSyncConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync_config %q: %w", key, err)
	}
	return nil
}

// SetSyncEnabled flips the gate that the change-capture triggers check
// before writing to sync_metadata. Disabling sync stops new local writes
// from being queued for upload without dropping the existing ledger.
func (s *SQLiteStore) SetSyncEnabled(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.SetSyncConfig(ctx, syncConfigKeySyncEnabled, value)
}

// IsSyncEnabled reports the current state of the sync_enabled gate.
// Sync is disabled by default until explicitly turned on.
func (s *SQLiteStore) IsSyncEnabled(ctx context.Context) (bool, error) {
	value, ok, err := s.GetSyncConfig(ctx, syncConfigKeySyncEnabled)
	if err != nil {
		return false, err
	}
	return ok && value == "1", nil
}

// cursorKey returns the sync_config key tracking the last applied
// sync_metadata id from a given remote device.
func cursorKey(sourceDeviceID string) string {
	return "cursor:" + sourceDeviceID
}

// GetCursor returns the last applied remote sequence number from
// sourceDeviceID, 0 if nothing has been applied from it yet.
func (s *SQLiteStore) GetCursor(ctx context.Context, sourceDeviceID string) (int64, error) {
	value, ok, err := s.GetSyncConfig(ctx, cursorKey(sourceDeviceID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var cursor int64
	if _, err := fmt.Sscanf(value, "%d", &cursor); err != nil {
		return 0, fmt.Errorf("parse cursor for %s: %w", sourceDeviceID, err)
	}
	return cursor, nil
}

// SetCursor records the last applied remote sequence number from
// sourceDeviceID.
func (s *SQLiteStore) SetCursor(ctx context.Context, sourceDeviceID string, cursor int64) error {
	return s.SetSyncConfig(ctx, cursorKey(sourceDeviceID), fmt.Sprintf("%d", cursor))
}

// GetVectorClock reads this device's current global vector clock, stored
// as one row per device under the reserved "_global"/"_global" key, the
// same flat device_id -> clock_value shape the desktop client used.
func (s *SQLiteStore) GetVectorClock(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, clock_value FROM vector_clocks
		WHERE table_name = '_global' AND record_id = '_global'
	`)
	if err != nil {
		return nil, fmt.Errorf("query vector_clocks: %w", err)
	}
	defer rows.Close()

	clock := make(map[string]int64)
	for rows.Next() {
		var deviceID string
		var value int64
		if err := rows.Scan(&deviceID, &value); err != nil {
			return nil, fmt.Errorf("scan vector_clocks row: %w", err)
		}
		clock[deviceID] = value
	}
	return clock, rows.Err()
}

// SetVectorClock replaces this device's stored view of the global vector
// clock with clock, one row per device.
func (s *SQLiteStore) SetVectorClock(ctx context.Context, clock map[string]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for deviceID, value := range clock {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vector_clocks (table_name, record_id, device_id, clock_value, updated_at)
			VALUES ('_global', '_global', ?, ?, ?)
			ON CONFLICT(table_name, record_id, device_id) DO UPDATE SET
				clock_value = excluded.clock_value, updated_at = excluded.updated_at
		`, deviceID, value, now)
		if err != nil {
			return fmt.Errorf("upsert vector clock for %s: %w", deviceID, err)
		}
	}

	return tx.Commit()
}

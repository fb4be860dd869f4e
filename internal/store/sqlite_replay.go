package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// execContext is satisfied by both *sql.DB and *sql.Tx, letting the replay
// helpers run either standalone or inside a caller-managed transaction.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithCaptureSuspended runs fn inside a transaction with the change-capture
// triggers disabled, so replaying a remote delta doesn't re-append its own
// operations back onto the local ledger. The apply_in_progress gate is
// cleared even if fn returns an error.
func (s *SQLiteStore) WithCaptureSuspended(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_config (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = '1'
	`, syncConfigKeyApplyInProgress); err != nil {
		return fmt.Errorf("suspend change capture: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_config (key, value) VALUES (?, '0')
		ON CONFLICT(key) DO UPDATE SET value = '0'
	`, syncConfigKeyApplyInProgress); err != nil {
		return fmt.Errorf("resume change capture: %w", err)
	}

	return tx.Commit()
}

// UpsertRow applies an upsert operation to tableName for entityID using the
// row's registered schema, guarded by the schema's _version column when
// Versioned is set. execer is normally a *sql.Tx supplied by
// WithCaptureSuspended.
func UpsertRow(ctx context.Context, execer execContext, tableName, entityID string, payload []byte) error {
	schema, ok := GetTableSchema(tableName)
	if !ok {
		return fmt.Errorf("%s: %w", tableName, ErrUnsupportedTable)
	}
	return genericUpsertRow(ctx, execer, schema, entityID, payload)
}

// DeleteRow applies a delete operation to tableName for entityID.
func DeleteRow(ctx context.Context, execer execContext, tableName, entityID string) error {
	schema, ok := GetTableSchema(tableName)
	if !ok {
		return fmt.Errorf("%s: %w", tableName, ErrUnsupportedTable)
	}
	return genericDeleteRow(ctx, execer, schema, entityID)
}

// genericUpsertRow builds and runs an INSERT ... ON CONFLICT DO UPDATE
// against schema's table. For versioned tables the update clause is
// additionally guarded so an incoming row only overwrites the stored one
// when its _version is strictly greater — the last-writer-wins guard that
// makes apply order-independent across conflicting concurrent edits.
func genericUpsertRow(ctx context.Context, execer execContext, schema TableSchema, entityID string, payload []byte) error {
	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if len(schema.KeyColumns) == 1 && schema.KeyColumns[0] == "id" {
		if payloadID, ok := data["id"].(string); ok && payloadID != entityID {
			return fmt.Errorf("%s %q: %w", schema.Name, entityID, ErrPayloadIDMismatch)
		}
	}

	cols := schema.Columns
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	updateClauses := make([]string, 0, len(cols))

	keySet := make(map[string]bool, len(schema.KeyColumns))
	for _, k := range schema.KeyColumns {
		keySet[k] = true
	}

	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = mapValueToSQL(data[col])
		if !keySet[col] {
			updateClauses = append(updateClauses, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	conflictTarget := strings.Join(schema.KeyColumns, ", ")

	sqlStr := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		schema.Name,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		conflictTarget,
		strings.Join(updateClauses, ", "),
	)

	if schema.Versioned {
		sqlStr += fmt.Sprintf(" WHERE excluded._version > %s._version", schema.Name)
	}

	if _, err := execer.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert %s row %s: %w", schema.Name, entityID, err)
	}
	return nil
}

// genericDeleteRow hard-deletes a row by its single "id" key column. None
// of the replicated tables use soft delete: deletes propagate as tombstones
// in the ledger itself, so the row history doesn't need to be kept around
// locally too.
func genericDeleteRow(ctx context.Context, execer execContext, schema TableSchema, entityID string) error {
	keyParts := splitEntityKey(entityID, len(schema.KeyColumns))
	args := make([]interface{}, len(keyParts))
	for i, p := range keyParts {
		args[i] = p
	}

	if schema.SoftDelete {
		sqlStr := fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE %s AND deleted_at IS NULL",
			schema.Name, equalsClause(schema.KeyColumns))
		if _, err := execer.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("soft delete %s row %s: %w", schema.Name, entityID, err)
		}
		return nil
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", schema.Name, equalsClause(schema.KeyColumns))
	if _, err := execer.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete %s row %s: %w", schema.Name, entityID, err)
	}
	return nil
}

// entityKeySeparator joins composite-key columns into the single record_id
// string carried by the ledger and delta wire format, e.g. a project_tags
// row becomes "{project_id}:{tag}" (spec.md §3, §4.6.1).
const entityKeySeparator = ":"

// splitEntityKey splits a record_id into its component key values, cutting
// only on the first n-1 separators so a trailing key part (e.g. a tag) may
// itself contain the separator character. Single key tables pass their id
// through unchanged.
func splitEntityKey(entityID string, n int) []string {
	if n <= 1 {
		return []string{entityID}
	}
	parts := strings.SplitN(entityID, entityKeySeparator, n)
	if len(parts) != n {
		// Malformed key: fall back to treating the whole string as a
		// single value repeated, which will simply fail to match any row.
		parts = make([]string, n)
		for i := range parts {
			parts[i] = entityID
		}
	}
	return parts
}

// equalsClause builds "col1 = ? AND col2 = ? ..." for the given columns.
func equalsClause(cols []string) string {
	clauses := make([]string, len(cols))
	for i, c := range cols {
		clauses[i] = c + " = ?"
	}
	return strings.Join(clauses, " AND ")
}

// mapValueToSQL converts a decoded JSON value into a SQL-safe parameter,
// flattening nested objects/arrays to their JSON text representation.
func mapValueToSQL(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return v
	}
}

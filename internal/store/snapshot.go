package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/offlinesync/projex/internal/snapshotcodec"
)

// ExportTables reads every replicated table into a snapshotcodec.ExportRoot,
// folding project_tags into each project row's nested "tags" array rather
// than exporting it as a table of its own.
func (s *SQLiteStore) ExportTables(ctx context.Context) (snapshotcodec.ExportRoot, error) {
	var root snapshotcodec.ExportRoot

	people, err := s.exportTable(ctx, "people")
	if err != nil {
		return root, fmt.Errorf("export people: %w", err)
	}
	root.Persons = people

	partners, err := s.exportTable(ctx, "partners")
	if err != nil {
		return root, fmt.Errorf("export partners: %w", err)
	}
	root.Partners = partners

	projects, err := s.exportTable(ctx, "projects")
	if err != nil {
		return root, fmt.Errorf("export projects: %w", err)
	}
	tagsByProject, err := s.exportProjectTags(ctx)
	if err != nil {
		return root, fmt.Errorf("export project_tags: %w", err)
	}
	for _, row := range projects {
		id, _ := row["id"].(string)
		row["tags"] = tagsByProject[id]
	}
	root.Projects = projects

	assignments, err := s.exportTable(ctx, "assignments")
	if err != nil {
		return root, fmt.Errorf("export assignments: %w", err)
	}
	root.Assignments = assignments

	statusHistory, err := s.exportTable(ctx, "status_history")
	if err != nil {
		return root, fmt.Errorf("export status_history: %w", err)
	}
	root.StatusHistory = statusHistory

	comments, err := s.exportTable(ctx, "comments")
	if err != nil {
		return root, fmt.Errorf("export comments: %w", err)
	}
	root.Comments = comments

	return root, nil
}

// exportProjectTags returns each project's tags, ordered alphabetically for
// a deterministic snapshot, keyed by project_id.
func (s *SQLiteStore) exportProjectTags(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, tag FROM project_tags ORDER BY project_id ASC, tag ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var projectID, tag string
		if err := rows.Scan(&projectID, &tag); err != nil {
			return nil, err
		}
		out[projectID] = append(out[projectID], tag)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exportTable(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	schema, ok := GetTableSchema(tableName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", tableName, ErrUnsupportedTable)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(schema.Columns, ", "), schema.Name)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(schema.Columns))
		ptrs := make([]interface{}, len(schema.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(schema.Columns))
		for i, col := range schema.Columns {
			row[col] = normalizeSQLValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeSQLValue converts database/sql's driver value types ([]byte for
// TEXT columns under modernc.org/sqlite) into plain JSON-friendly values.
func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ImportTables replaces the full contents of every replicated table with
// root's contents, reconstituting project_tags rows from each project's
// nested "tags" array. Runs inside a single transaction with change capture
// suspended so the restore itself isn't re-queued onto the ledger.
func (s *SQLiteStore) ImportTables(ctx context.Context, root snapshotcodec.ExportRoot) error {
	return s.WithCaptureSuspended(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, name := range TableNames() {
			schema, _ := GetTableSchema(name)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", schema.Name)); err != nil {
				return fmt.Errorf("clear %s: %w", schema.Name, err)
			}
		}

		imports := []struct {
			table string
			rows  []map[string]interface{}
		}{
			{"people", root.Persons},
			{"partners", root.Partners},
			{"projects", root.Projects},
			{"assignments", root.Assignments},
			{"status_history", root.StatusHistory},
			{"comments", root.Comments},
		}
		for _, im := range imports {
			schema, _ := GetTableSchema(im.table)
			for _, row := range im.rows {
				if err := importRow(ctx, tx, schema, row); err != nil {
					return fmt.Errorf("import %s row: %w", schema.Name, err)
				}
			}
		}

		tagSchema, _ := GetTableSchema("project_tags")
		for _, project := range root.Projects {
			id, _ := project["id"].(string)
			tags, err := tagsFromRow(project["tags"])
			if err != nil {
				return fmt.Errorf("decode tags for project %s: %w", id, err)
			}
			for _, tag := range tags {
				row := map[string]interface{}{"project_id": id, "tag": tag}
				if err := importRow(ctx, tx, tagSchema, row); err != nil {
					return fmt.Errorf("import project_tags row: %w", err)
				}
			}
		}

		return nil
	})
}

// tagsFromRow normalizes a project row's decoded "tags" field, which arrives
// as []interface{} of strings after a JSON round trip, into a sorted
// []string.
func tagsFromRow(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if strs, ok := v.([]string); ok {
		sort.Strings(strs)
		return strs, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected tags value %T", v)
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		tag, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected tag value %T", t)
		}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func importRow(ctx context.Context, tx *sql.Tx, schema TableSchema, row map[string]interface{}) error {
	placeholders := make([]string, len(schema.Columns))
	args := make([]interface{}, len(schema.Columns))
	for i, col := range schema.Columns {
		placeholders[i] = "?"
		args[i] = mapValueToSQL(row[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Name, strings.Join(schema.Columns, ", "), strings.Join(placeholders, ", "))

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

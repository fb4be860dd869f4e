package store

// TableSchema describes a replicated business table well enough for the
// generic replay path to upsert or delete a row without per-table Go code.
type TableSchema struct {
	Name string
	// Columns lists every column in insert order. "id" must be first for
	// single-key tables; composite-key tables list all key columns first.
	Columns []string
	// KeyColumns identifies the columns that form the conflict target for
	// ON CONFLICT DO UPDATE. Most tables key on "id"; project_tags keys on
	// (project_id, tag).
	KeyColumns []string
	// Versioned tables carry a _version column and are guarded against
	// last-writer-wins regressions: an incoming row only overwrites the
	// local one if its _version is greater.
	Versioned bool
	// SoftDelete tables are deleted by setting deleted_at rather than
	// removing the row. None of the current tables use this; hard delete
	// is what the replicated schema calls for, per delta_sync.rs's
	// apply_delete.
	SoftDelete bool
}

// tableSchemas is the static registry of every table the sync engine knows
// how to replay. Business schema is intentionally not pluggable: this
// system replicates one fixed relational dataset end to end.
var tableSchemas = map[string]TableSchema{
	"people": {
		Name:       "people",
		Columns:    []string{"id", "display_name", "email", "role", "note", "is_active", "created_at", "updated_at", "_version"},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
	"partners": {
		Name:       "partners",
		Columns:    []string{"id", "name", "note", "is_active", "created_at", "updated_at", "_version"},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
	"projects": {
		Name: "projects",
		Columns: []string{
			"id", "name", "description", "priority", "current_status", "country_code",
			"partner_id", "owner_person_id", "start_date", "due_date",
			"created_at", "updated_at", "archived_at", "_version",
		},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
	"project_tags": {
		Name:       "project_tags",
		Columns:    []string{"project_id", "tag"},
		KeyColumns: []string{"project_id", "tag"},
	},
	"assignments": {
		Name:       "assignments",
		Columns:    []string{"id", "project_id", "person_id", "role", "start_at", "end_at", "created_at", "_version"},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
	"status_history": {
		Name:       "status_history",
		Columns:    []string{"id", "project_id", "from_status", "to_status", "changed_at", "changed_by_person_id", "note", "_version"},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
	"comments": {
		Name:       "comments",
		Columns:    []string{"id", "project_id", "author_person_id", "body", "created_at", "_version"},
		KeyColumns: []string{"id"},
		Versioned:  true,
	},
}

// GetTableSchema looks up a replicated table's schema by name.
func GetTableSchema(tableName string) (TableSchema, bool) {
	s, ok := tableSchemas[tableName]
	return s, ok
}

// TableNames returns every replicated table name, used by snapshot
// export/import to walk the full dataset.
func TableNames() []string {
	names := make([]string, 0, len(tableSchemas))
	for name := range tableSchemas {
		names = append(names, name)
	}
	return names
}

package store

import (
	"context"
	"testing"

	"github.com/offlinesync/projex/internal/snapshotcodec"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	insertTestPerson(t, s, "person-1", "Ada")
	insertTestPerson(t, s, "person-2", "Grace")

	root, err := s.ExportTables(ctx)
	if err != nil {
		t.Fatalf("ExportTables: %v", err)
	}
	if len(root.Persons) != 2 {
		t.Fatalf("expected 2 exported persons, got %d", len(root.Persons))
	}

	s2 := newTestStore(t)
	if err := s2.ImportTables(ctx, root); err != nil {
		t.Fatalf("ImportTables: %v", err)
	}

	var count int
	if err := s2.DB().QueryRow(`SELECT COUNT(*) FROM people`).Scan(&count); err != nil {
		t.Fatalf("count people: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 imported rows, got %d", count)
	}
}

func TestExportImportRoundTripNestsProjectTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.DB().Exec(`
		INSERT INTO projects (id, name, description, priority, current_status, country_code,
			partner_id, owner_person_id, start_date, due_date, created_at, updated_at, archived_at, _version)
		VALUES ('proj-1', 'Launch', '', 0, 'active', 'US', NULL, NULL, NULL, NULL,
			'2026-07-31T00:00:00Z', '2026-07-31T00:00:00Z', NULL, 1)
	`); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if _, err := s.DB().Exec(`INSERT INTO project_tags (project_id, tag) VALUES ('proj-1', 'urgent'), ('proj-1', 'backend')`); err != nil {
		t.Fatalf("insert project_tags: %v", err)
	}

	root, err := s.ExportTables(ctx)
	if err != nil {
		t.Fatalf("ExportTables: %v", err)
	}
	if len(root.Projects) != 1 {
		t.Fatalf("expected 1 exported project, got %d", len(root.Projects))
	}
	tags, _ := root.Projects[0]["tags"].([]string)
	if len(tags) != 2 || tags[0] != "backend" || tags[1] != "urgent" {
		t.Fatalf("unexpected exported tags: %v", root.Projects[0]["tags"])
	}

	s2 := newTestStore(t)
	if err := s2.ImportTables(ctx, root); err != nil {
		t.Fatalf("ImportTables: %v", err)
	}

	var count int
	if err := s2.DB().QueryRow(`SELECT COUNT(*) FROM project_tags WHERE project_id = 'proj-1'`).Scan(&count); err != nil {
		t.Fatalf("count project_tags: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 imported project_tags rows, got %d", count)
	}
}

func TestImportTablesReplacesExistingRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertTestPerson(t, s, "stale-person", "Stale")

	if err := s.ImportTables(ctx, snapshotcodec.ExportRoot{}); err != nil {
		t.Fatalf("ImportTables: %v", err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM people`).Scan(&count); err != nil {
		t.Fatalf("count people: %v", err)
	}
	if count != 0 {
		t.Errorf("expected import to clear existing rows, got count=%d", count)
	}
}

func TestImportTablesDoesNotPolluteLedger(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled: %v", err)
	}

	root := snapshotcodec.ExportRoot{
		Persons: []map[string]interface{}{
			{"id": "person-1", "display_name": "Ada", "email": nil, "role": nil, "note": nil,
				"is_active": true, "created_at": "2026-07-31T00:00:00Z", "updated_at": "2026-07-31T00:00:00Z", "_version": float64(1)},
		},
	}

	if err := s.ImportTables(ctx, root); err != nil {
		t.Fatalf("ImportTables: %v", err)
	}

	entries, err := s.GetChangeLogAfter(ctx, 0, 10)
	if err != nil {
		t.Fatalf("GetChangeLogAfter: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("restoring a snapshot should not populate the ledger, got %d entries", len(entries))
	}
}

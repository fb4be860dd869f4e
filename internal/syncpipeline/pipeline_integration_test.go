package syncpipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/offlinesync/projex/internal/objectstore"
	"github.com/offlinesync/projex/internal/store"
	"github.com/offlinesync/projex/internal/syncpipeline"
)

func newDevice(t *testing.T, deviceID string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:", deviceID)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func configureDevice(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	if err := s.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled: %v", err)
	}
	for k, v := range map[string]string{
		"s3_bucket":     "test-bucket",
		"s3_endpoint":   "https://example-shared-bucket.test",
		"s3_access_key": "key",
		"s3_secret_key": "secret",
	} {
		if err := s.SetSyncConfig(ctx, k, v); err != nil {
			t.Fatalf("SetSyncConfig(%s): %v", k, err)
		}
	}
}

func insertTestPerson(t *testing.T, s *store.SQLiteStore, id, name string) {
	t.Helper()
	_, err := s.DB().Exec(`
		INSERT INTO people (id, display_name, created_at, updated_at, _version)
		VALUES (?, ?, '2026-07-31T00:00:00Z', '2026-07-31T00:00:00Z', 1)
	`, id, name)
	if err != nil {
		t.Fatalf("insert person: %v", err)
	}
}

// sharedFake returns a NewClient closure that always hands back the same
// in-memory FakeStore, simulating every device pointing at one bucket.
func sharedFake(fake *objectstore.FakeStore) func(objectstore.Config) (objectstore.Client, error) {
	return func(objectstore.Config) (objectstore.Client, error) {
		return fake, nil
	}
}

// tickingClock returns a Now func that advances by one nanosecond on every
// call, so successive deltas from the same device always sort afterward.
func tickingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Nanosecond)
		return t
	}
}

func newPipeline(s syncpipeline.Store, fake *objectstore.FakeStore, clock func() time.Time, suffix func() string) *syncpipeline.Pipeline {
	return &syncpipeline.Pipeline{
		Store:        s,
		NewClient:    sharedFake(fake),
		Now:          clock,
		RandomSuffix: suffix,
	}
}

func TestScenario1_InsertPropagation(t *testing.T) {
	ctx := context.Background()
	fake := objectstore.NewFakeStore()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	a := newDevice(t, "device-a")
	configureDevice(t, a)
	insertTestPerson(t, a, "p1", "Alice")

	suffixCounter := 0
	nextSuffix := func() string { suffixCounter++; return string(rune('a' + suffixCounter)) }

	pa := newPipeline(a, fake, tickingClock(base), nextSuffix)
	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A): %v", err)
	}

	b := newDevice(t, "device-b")
	configureDevice(t, b)
	pb := newPipeline(b, fake, tickingClock(base.Add(time.Hour)), nextSuffix)
	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(B): %v", err)
	}

	var name string
	if err := b.DB().QueryRow(`SELECT display_name FROM people WHERE id = ?`, "p1").Scan(&name); err != nil {
		t.Fatalf("query person on B: %v", err)
	}
	if name != "Alice" {
		t.Errorf("B's p1 name = %q, want Alice", name)
	}

	cursor, err := b.GetCursor(ctx, "device-a")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor <= 0 {
		t.Errorf("expected B's cursor for device-a to advance, got %d", cursor)
	}

	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("repeat sync_full(B): %v", err)
	}
	var count int
	if err := b.DB().QueryRow(`SELECT COUNT(*) FROM people WHERE id = ?`, "p1").Scan(&count); err != nil {
		t.Fatalf("count p1 on B: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one p1 row on B after repeat sync, got %d", count)
	}
}

func TestScenario2_DeletePropagation(t *testing.T) {
	ctx := context.Background()
	fake := objectstore.NewFakeStore()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	suffixCounter := 0
	nextSuffix := func() string { suffixCounter++; return string(rune('a' + suffixCounter)) }

	a := newDevice(t, "device-a")
	configureDevice(t, a)
	b := newDevice(t, "device-b")
	configureDevice(t, b)

	insertTestPerson(t, a, "p2", "Bob")
	pa := newPipeline(a, fake, tickingClock(base), nextSuffix)
	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A) #1: %v", err)
	}
	pb := newPipeline(b, fake, tickingClock(base.Add(time.Hour)), nextSuffix)
	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(B) #1: %v", err)
	}

	if _, err := a.DB().Exec(`DELETE FROM people WHERE id = ?`, "p2"); err != nil {
		t.Fatalf("delete p2 on A: %v", err)
	}
	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A) #2: %v", err)
	}
	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(B) #2: %v", err)
	}

	var count int
	if err := b.DB().QueryRow(`SELECT COUNT(*) FROM people WHERE id = ?`, "p2").Scan(&count); err != nil {
		t.Fatalf("count p2 on B: %v", err)
	}
	if count != 0 {
		t.Errorf("expected p2 to be absent on B after delete propagation, got count=%d", count)
	}
}

func TestScenario3_StaleRemoteUpdateLosesToHigherVersion(t *testing.T) {
	ctx := context.Background()
	fake := objectstore.NewFakeStore()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	suffixCounter := 0
	nextSuffix := func() string { suffixCounter++; return string(rune('a' + suffixCounter)) }

	a := newDevice(t, "device-a")
	configureDevice(t, a)
	b := newDevice(t, "device-b")
	configureDevice(t, b)

	insertTestPerson(t, a, "p3", "Base")
	pa := newPipeline(a, fake, tickingClock(base), nextSuffix)
	pb := newPipeline(b, fake, tickingClock(base.Add(time.Hour)), nextSuffix)
	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A) #1: %v", err)
	}
	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(B) #1: %v", err)
	}

	if _, err := a.DB().Exec(`UPDATE people SET display_name = 'A-v2', _version = 2 WHERE id = ?`, "p3"); err != nil {
		t.Fatalf("update p3 on A: %v", err)
	}
	if _, err := b.DB().Exec(`UPDATE people SET display_name = 'B-v2', _version = 2 WHERE id = ?`, "p3"); err != nil {
		t.Fatalf("update p3 on B step 1: %v", err)
	}
	if _, err := b.DB().Exec(`UPDATE people SET display_name = 'B-v3', _version = 3 WHERE id = ?`, "p3"); err != nil {
		t.Fatalf("update p3 on B step 2: %v", err)
	}

	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A) #2: %v", err)
	}
	if _, err := pb.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(B) #2: %v", err)
	}

	var name string
	var version int
	if err := b.DB().QueryRow(`SELECT display_name, _version FROM people WHERE id = ?`, "p3").
		Scan(&name, &version); err != nil {
		t.Fatalf("query p3 on B: %v", err)
	}
	if name != "B-v3" || version != 3 {
		t.Errorf("B's p3 should remain B-v3/3 after receiving a stale A update, got %s/%d", name, version)
	}

	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A) #3: %v", err)
	}
	if err := a.DB().QueryRow(`SELECT display_name, _version FROM people WHERE id = ?`, "p3").
		Scan(&name, &version); err != nil {
		t.Fatalf("query p3 on A: %v", err)
	}
	if name != "B-v3" || version != 3 {
		t.Errorf("A should converge to B-v3/3, got %s/%d", name, version)
	}
}

func TestScenario4_CorruptRemoteDeltaFailsCycleAndDoesNotAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	fake := objectstore.NewFakeStore()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	suffixCounter := 0
	nextSuffix := func() string { suffixCounter++; return string(rune('a' + suffixCounter)) }

	a := newDevice(t, "device-a")
	configureDevice(t, a)
	b := newDevice(t, "device-b")
	configureDevice(t, b)

	insertTestPerson(t, a, "p4", "Carol")
	pa := newPipeline(a, fake, tickingClock(base), nextSuffix)
	if _, err := pa.RunOnce(ctx); err != nil {
		t.Fatalf("sync_full(A): %v", err)
	}

	keys, err := fake.List(ctx, "deltas/device-a/")
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected exactly one uploaded delta key, got %v err=%v", keys, err)
	}
	if err := fake.Upload(ctx, keys[0].Key, []byte("not a valid gzip payload")); err != nil {
		t.Fatalf("re-upload corrupted object: %v", err)
	}

	pb := newPipeline(b, fake, tickingClock(base.Add(time.Hour)), nextSuffix)
	if _, err := pb.RunOnce(ctx); err == nil {
		t.Fatal("expected sync_full(B) to fail on a corrupted remote delta")
	}

	cursor, err := b.GetCursor(ctx, "device-a")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor != 0 {
		t.Errorf("cursor should remain unchanged after a failed apply, got %d", cursor)
	}
}

func TestScenario5_BootstrapAgainstEmptyBucketOnlyOnce(t *testing.T) {
	ctx := context.Background()
	fake := objectstore.NewFakeStore()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	suffixCounter := 0
	nextSuffix := func() string { suffixCounter++; return string(rune('a' + suffixCounter)) }

	a := newDevice(t, "device-a")
	// Seed a local row before sync is ever enabled, so it never enters the
	// ledger and the first cycle has nothing to upload as a delta.
	insertTestPerson(t, a, "p5", "Dana")
	configureDevice(t, a)

	pa := newPipeline(a, fake, tickingClock(base), nextSuffix)
	result, err := pa.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sync_full(A) #1: %v", err)
	}
	if result.UploadedDelta {
		t.Fatal("expected no delta upload on the first cycle (no ledger entries)")
	}
	if !result.CreatedBootstrap {
		t.Fatal("expected the first cycle against an empty bucket to create a bootstrap snapshot")
	}

	result2, err := pa.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sync_full(A) #2: %v", err)
	}
	if result2.CreatedBootstrap {
		t.Error("expected the second cycle not to create another bootstrap snapshot")
	}

	keys, err := fake.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("expected exactly one bootstrap snapshot object, got %d", len(keys))
	}
}

package syncruntime_test

import (
	"path/filepath"
	"testing"

	"github.com/offlinesync/projex/internal/syncruntime"
)

func TestProcessLockExclusiveWithinProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")

	a := syncruntime.NewProcessLock(path)
	ok, err := a.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire (a): %v", err)
	}
	if !ok {
		t.Fatal("expected first TryAcquire to succeed")
	}

	b := syncruntime.NewProcessLock(path)
	ok, err = b.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire (b): %v", err)
	}
	if ok {
		t.Fatal("expected second TryAcquire on the same file to fail while held")
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release (a): %v", err)
	}

	ok, err = b.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire (b) after release: %v", err)
	}
	if !ok {
		t.Fatal("expected TryAcquire to succeed once the first lock is released")
	}
	b.Release()
}

func TestProcessLockReleaseWithoutAcquireIsNoOp(t *testing.T) {
	l := syncruntime.NewProcessLock(filepath.Join(t.TempDir(), "sync.lock"))
	if err := l.Release(); err != nil {
		t.Errorf("Release without prior TryAcquire should be a no-op, got %v", err)
	}
}

// Package syncruntime provides the process-local concurrency primitives
// that serialize sync cycles: a single-slot mutex around one cycle, a
// ticker-driven scheduler that can be aborted and respawned, and a
// cross-process advisory file lock for the mobile background worker
// (spec.md §4.8).
package syncruntime

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Mutex is a single-slot asynchronous mutex serializing every complete sync
// cycle, whether triggered manually or by the Scheduler. Acquisition is
// context-cancellable, which a hand-rolled chan struct{} would need extra
// plumbing to support.
type Mutex struct {
	sem *semaphore.Weighted
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// TryLock attempts to acquire the mutex without blocking. It reports
// whether the lock was acquired; a false return means a cycle is already
// in flight and the caller should report status=skipped rather than wait.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Lock blocks until the mutex is acquired or ctx is cancelled.
func (m *Mutex) Lock(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// Unlock releases the mutex. It must only be called by the goroutine that
// successfully acquired it.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}

// IsSyncing reports whether a cycle currently holds the mutex, for
// exposing sync_get_status's is_syncing field. It is inherently racy (the
// state can change the instant after this returns) and is intended only
// for best-effort UI status, never for correctness decisions.
func (m *Mutex) IsSyncing() bool {
	if !m.sem.TryAcquire(1) {
		return true
	}
	m.sem.Release(1)
	return false
}

package syncruntime

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ProcessLock is a cross-process advisory exclusive lock on a single file,
// used by the mobile background worker so a background pass and a
// concurrently running foreground/desktop pass can never both run
// (spec.md §4.8, §9). golang.org/x/sys is already pulled in transitively by
// modernc.org/sqlite, so this reaches for it rather than a dedicated
// file-locking library the corpus doesn't otherwise use.
//
// Contention means "skip this pass", never "wait": TryAcquire returns false
// immediately if another process holds the lock.
type ProcessLock struct {
	path string
	file *os.File
}

// NewProcessLock returns a ProcessLock bound to path (conventionally
// <data-dir>/sync.lock). The file is created if missing but not locked yet.
func NewProcessLock(path string) *ProcessLock {
	return &ProcessLock{path: path}
}

// TryAcquire attempts a non-blocking exclusive lock. It reports whether the
// lock was acquired. Callers must always acquire the file lock before the
// in-process Mutex to rule out deadlock between the two (spec.md §9).
func (l *ProcessLock) TryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}

	l.file = f
	return true, nil
}

// Release unlocks and closes the lock file. Calling it without a prior
// successful TryAcquire is a no-op.
func (l *ProcessLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return closeErr
}

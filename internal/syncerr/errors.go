// Package syncerr defines the sentinel error kinds surfaced to callers
// outside the sync engine, each carrying a stable string code so a CLI or
// embedding host can branch on failure kind without string-matching
// Error().
package syncerr

import "errors"

// Kind is a sentinel sync error, comparable with errors.Is and wrapped with
// fmt.Errorf("...: %w", kind) at the point of detection.
type Kind struct {
	code string
	msg  string
}

func (k *Kind) Error() string { return k.msg }

// Code returns the stable string code for this error kind, e.g. for
// inclusion in a CLI exit message or an API response body.
func (k *Kind) Code() string { return k.code }

var (
	// ErrDB is a local store failure: lock poisoning, query error.
	ErrDB = &Kind{code: "DB_ERROR", msg: "local store error"}

	// ErrValidation is malformed input: unsupported import version,
	// non-HTTPS endpoint on the mobile background path, etc.
	ErrValidation = &Kind{code: "VALIDATION_ERROR", msg: "validation error"}

	// ErrNotFound is a missing business-layer entity.
	ErrNotFound = &Kind{code: "NOT_FOUND", msg: "not found"}

	// ErrConflict is a business-layer conflict (e.g. an already-active
	// assignment).
	ErrConflict = &Kind{code: "CONFLICT", msg: "conflict"}

	// ErrSyncConfigIncomplete means one or more required sync_config
	// fields (device_id, bucket, access key, secret key) are missing.
	ErrSyncConfigIncomplete = &Kind{code: "SYNC_CONFIG_INCOMPLETE", msg: "sync configuration is incomplete"}

	// ErrSync is the catch-all for transport/apply failures during a sync
	// cycle, carrying either the object store's structured code/message or
	// a checksum-mismatch description.
	ErrSync = &Kind{code: "SYNC_ERROR", msg: "sync error"}

	// ErrPartnerImmutable: a partner's identity fields cannot be changed
	// once it has active assignments.
	ErrPartnerImmutable = &Kind{code: "PARTNER_IMMUTABLE", msg: "partner is immutable"}

	// ErrInvalidStatusTransition: the requested project status change is
	// not in the allowed-transition table.
	ErrInvalidStatusTransition = &Kind{code: "INVALID_STATUS_TRANSITION", msg: "invalid status transition"}

	// ErrNoteRequired: the requested status transition requires a note and
	// none was supplied.
	ErrNoteRequired = &Kind{code: "NOTE_REQUIRED", msg: "a note is required for this transition"}

	// ErrAssignmentAlreadyActive: the person is already actively assigned
	// to the project.
	ErrAssignmentAlreadyActive = &Kind{code: "ASSIGNMENT_ALREADY_ACTIVE", msg: "assignment is already active"}

	// ErrAssignmentNotActive: the assignment being ended is not currently
	// active.
	ErrAssignmentNotActive = &Kind{code: "ASSIGNMENT_NOT_ACTIVE", msg: "assignment is not active"}
)

// Is reports whether err wraps one of the Kind sentinels above, returning
// that sentinel and true if so.
func Is(err error) (*Kind, bool) {
	var k *Kind
	if errors.As(err, &k) {
		return k, true
	}
	return nil, false
}

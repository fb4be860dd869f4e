package store

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedTable  = errors.New("unsupported table")
	ErrPayloadIDMismatch = errors.New("payload id does not match entity id")
	ErrChecksumMismatch  = errors.New("delta checksum mismatch")
)

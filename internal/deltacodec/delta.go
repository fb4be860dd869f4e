// Package deltacodec defines the wire representation of a batch of captured
// row changes, and the checksum/compression routines used before an upload
// and after a download.
package deltacodec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// OperationType is the kind of row mutation a single Operation captures.
type OperationType string

const (
	OperationInsert OperationType = "Insert"
	OperationUpdate OperationType = "Update"
	OperationDelete OperationType = "Delete"
)

// Operation is a single captured row change, keyed by table and record id.
type Operation struct {
	TableName string                 `json:"table_name"`
	RecordID  string                 `json:"record_id"`
	Type      OperationType          `json:"op_type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Version   int64                  `json:"version"`
}

// VectorClockWire is the on-wire shape of a delta's vector clock: a device
// id to counter map nested under "clocks".
type VectorClockWire struct {
	Clocks map[string]int64 `json:"clocks"`
}

// Delta is a checksum-stamped batch of operations, the unit exchanged
// between devices via an object store.
type Delta struct {
	// ID is the source device's local change-log sequence number this
	// delta was collected through. It travels on the wire but is
	// local-only: a receiver never reads it, since apply order is
	// determined by the object key's embedded timestamp and the
	// per-source cursor, not this field.
	ID          int64            `json:"id"`
	Operations  []Operation      `json:"operations"`
	DeviceID    string           `json:"device_id"`
	VectorClock VectorClockWire  `json:"vector_clock"`
	CreatedAt   string           `json:"created_at"`
	Checksum    string           `json:"checksum"`
}

// CalculateChecksum returns the hex-encoded SHA-256 digest of the
// canonical JSON encoding of ops. The checksum field itself is excluded
// from what's hashed by always computing it over operations alone.
func CalculateChecksum(ops []Operation) (string, error) {
	encoded, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("encoding operations for checksum: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum over d.Operations and compares it against
// d.Checksum.
func (d *Delta) Verify() (bool, error) {
	sum, err := CalculateChecksum(d.Operations)
	if err != nil {
		return false, err
	}
	return sum == d.Checksum, nil
}

// Stamp sets d.Checksum from the current operations.
func (d *Delta) Stamp() error {
	sum, err := CalculateChecksum(d.Operations)
	if err != nil {
		return err
	}
	d.Checksum = sum
	return nil
}

// Compress JSON-encodes d and gzips the result, ready for an object store
// upload.
func Compress(d *Delta) ([]byte, error) {
	encoded, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding delta: %w", err)
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("compressing delta: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing delta compressor: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress: gunzips data and decodes the JSON delta.
func Decompress(data []byte) (*Delta, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening delta decompressor: %w", err)
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing delta: %w", err)
	}

	var d Delta
	if err := json.Unmarshal(decoded, &d); err != nil {
		return nil, fmt.Errorf("decoding delta: %w", err)
	}

	return &d, nil
}

// Package snapshotcodec defines the full-database snapshot format used for
// CreateSnapshot/RestoreSnapshot: a single checksummed, compressed JSON
// document whose "data" field carries a JSON-string export of every
// replicated table (spec.md §6).
package snapshotcodec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// FormatVersion is bumped whenever the snapshot document shape changes
// incompatibly.
const FormatVersion = 1

// ExportRoot is the decoded shape of a Snapshot's "data" field: one
// camelCase-named array per business table, each object carrying every
// persisted column plus _version. project_tags has no table of its own on
// the wire; it rides along as a nested "tags" array on each project row.
type ExportRoot struct {
	Persons       []map[string]interface{} `json:"persons"`
	Partners      []map[string]interface{} `json:"partners"`
	Projects      []map[string]interface{} `json:"projects"`
	Assignments   []map[string]interface{} `json:"assignments"`
	StatusHistory []map[string]interface{} `json:"statusHistory"`
	Comments      []map[string]interface{} `json:"comments"`
}

// Snapshot is the full-database export unit uploaded to and downloaded from
// object storage. Data is itself a JSON-encoded string of an ExportRoot,
// not a nested object, per spec.md §6.
type Snapshot struct {
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	DeviceID  string `json:"device_id"`
	Data      string `json:"data"`
	Checksum  string `json:"checksum"`
}

// EncodeData marshals root into the JSON string carried by Snapshot.Data.
func EncodeData(root ExportRoot) (string, error) {
	encoded, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("encoding export root: %w", err)
	}
	return string(encoded), nil
}

// DecodeData parses a Snapshot.Data string back into an ExportRoot.
func DecodeData(data string) (ExportRoot, error) {
	var root ExportRoot
	if err := json.Unmarshal([]byte(data), &root); err != nil {
		return ExportRoot{}, fmt.Errorf("decoding export root: %w", err)
	}
	return root, nil
}

// CalculateChecksum returns the hex SHA-256 digest of data, exactly as
// carried in Snapshot.Checksum.
func CalculateChecksum(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Stamp sets s.Checksum from the current s.Data.
func (s *Snapshot) Stamp() error {
	s.Checksum = CalculateChecksum(s.Data)
	return nil
}

// Verify recomputes the checksum over s.Data and compares it against
// s.Checksum.
func (s *Snapshot) Verify() (bool, error) {
	return CalculateChecksum(s.Data) == s.Checksum, nil
}

// Compress JSON-encodes s and gzips the result.
func Compress(s *Snapshot) ([]byte, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing snapshot compressor: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) (*Snapshot, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot decompressor: %w", err)
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(decoded, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	return &s, nil
}

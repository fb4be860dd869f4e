package syncpipeline

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	snapshotPrefix = "snapshots/"
	deltaPrefix    = "deltas/"
)

// snapshotKey returns the well-known bootstrap snapshot key for deviceID.
func snapshotKey(deviceID string) string {
	return fmt.Sprintf("%slatest-%s.gz", snapshotPrefix, deviceID)
}

// deltaKey builds a new-format delta object key, using ulid as the random
// suffix so keys generated within the same nanosecond still sort uniquely.
func deltaKey(deviceID string, ts int64, random string) string {
	return fmt.Sprintf("%s%s/delta-%d-%s.gz", deltaPrefix, deviceID, ts, random)
}

// remoteDelta is a parsed "deltas/<device>/delta-<ts>[-<random>].gz" key.
type remoteDelta struct {
	Key      string
	DeviceID string
	// TS is the tuple key used for ordering and cursor comparison: integer
	// nanoseconds for new-format keys, integer seconds for legacy ones.
	TS int64
}

// parseDeltaKey parses both the new format
// (deltas/<device>/delta-<ts>-<random>.gz) and the legacy format
// (deltas/<device>/delta-<ts>.gz, no random suffix). Keys that don't match
// either shape return an error so the caller can skip and log them.
func parseDeltaKey(key string) (remoteDelta, error) {
	rest := strings.TrimPrefix(key, deltaPrefix)
	if rest == key {
		return remoteDelta{}, fmt.Errorf("key %q is not under %q", key, deltaPrefix)
	}

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return remoteDelta{}, fmt.Errorf("key %q is missing a device segment", key)
	}
	deviceID := rest[:slash]
	filename := rest[slash+1:]

	filename = strings.TrimSuffix(filename, ".gz")
	if filename == rest[slash+1:] {
		return remoteDelta{}, fmt.Errorf("key %q is missing the .gz suffix", key)
	}

	const stem = "delta-"
	if !strings.HasPrefix(filename, stem) {
		return remoteDelta{}, fmt.Errorf("key %q is missing the delta- stem", key)
	}
	body := strings.TrimPrefix(filename, stem)

	tsPart := body
	if dash := strings.Index(body, "-"); dash >= 0 {
		tsPart = body[:dash]
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return remoteDelta{}, fmt.Errorf("key %q has a non-integer timestamp: %w", key, err)
	}

	if deviceID == "" {
		return remoteDelta{}, fmt.Errorf("key %q has an empty device id", key)
	}

	return remoteDelta{Key: key, DeviceID: deviceID, TS: ts}, nil
}

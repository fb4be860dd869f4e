// Package deltaengine turns the local change ledger into an uploadable
// deltacodec.Delta, and applies a downloaded Delta back into the local
// database through the store's last-writer-wins guarded replay path.
package deltaengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/offlinesync/projex/internal/deltacodec"
	"github.com/offlinesync/projex/internal/store"
	"github.com/offlinesync/projex/internal/vectorclock"
)

// DefaultCollectLimit bounds how many ledger rows a single CollectLocalDelta
// call will bundle into one delta, keeping upload payloads bounded.
const DefaultCollectLimit = 5000

// Store is the subset of *store.SQLiteStore the engine depends on,
// narrowed to an interface so pipeline tests can substitute a fake.
//
// Per-source cursor bookkeeping is deliberately not part of this
// interface: the cursor is keyed on the object key's embedded
// timestamp (spec.md §4.7 step 5), which only the sync pipeline knows
// how to parse. ApplyRemoteDelta is idempotent on its own (the LWW
// version guard rejects an equal-or-stale version, deletes are
// naturally idempotent), so the pipeline is free to re-apply a delta
// it has already seen without corrupting state.
type Store interface {
	DeviceID() string
	GetChangeLogAfter(ctx context.Context, afterID int64, limit int) ([]store.ChangeLogEntry, error)
	MarkSynced(ctx context.Context, uptoID int64) error
	GetVectorClock(ctx context.Context) (map[string]int64, error)
	SetVectorClock(ctx context.Context, clock map[string]int64) error
	WithCaptureSuspended(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// CollectLocalDelta reads every unsynced ledger row (up to limit), packages
// it into a checksummed Delta, and advances this device's vector clock
// component by the number of operations included. It does not mark rows
// synced; the caller does that via MarkSynced only after a successful
// upload, so a crash mid-upload just re-sends the same delta next time.
func CollectLocalDelta(ctx context.Context, s Store, limit int) (*deltacodec.Delta, error) {
	if limit <= 0 {
		limit = DefaultCollectLimit
	}

	entries, err := s.GetChangeLogAfter(ctx, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("collect local delta: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	deviceID := s.DeviceID()
	ops := make([]deltacodec.Operation, 0, len(entries))
	for _, e := range entries {
		op := deltacodec.Operation{
			TableName: e.TableName,
			RecordID:  e.RecordID,
		}
		switch e.Operation {
		case "INSERT":
			op.Type = deltacodec.OperationInsert
		case "UPDATE":
			op.Type = deltacodec.OperationUpdate
		case "DELETE":
			op.Type = deltacodec.OperationDelete
		default:
			return nil, fmt.Errorf("unknown ledger operation %q", e.Operation)
		}
		if op.Type != deltacodec.OperationDelete {
			var data map[string]interface{}
			if len(e.Payload) > 0 {
				if err := json.Unmarshal(e.Payload, &data); err != nil {
					return nil, fmt.Errorf("decode payload for %s %s: %w", e.TableName, e.RecordID, err)
				}
			}
			op.Data = data
			if v, ok := data["_version"]; ok {
				if f, ok := v.(float64); ok {
					op.Version = int64(f)
				}
			}
		}
		ops = append(ops, op)
	}

	clockMap, err := s.GetVectorClock(ctx)
	if err != nil {
		return nil, fmt.Errorf("read vector clock: %w", err)
	}
	clock := vectorclock.FromMap(clockMap)
	for range ops {
		clock = clock.Increment(deviceID)
	}
	if err := s.SetVectorClock(ctx, clock.Map()); err != nil {
		return nil, fmt.Errorf("persist vector clock: %w", err)
	}

	delta := &deltacodec.Delta{
		ID:          entries[len(entries)-1].ID,
		DeviceID:    deviceID,
		Operations:  ops,
		VectorClock: deltacodec.VectorClockWire{Clocks: clock.Map()},
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := delta.Stamp(); err != nil {
		return nil, fmt.Errorf("stamp delta: %w", err)
	}

	return delta, nil
}

// ConfirmUpload marks the ledger rows a successfully uploaded delta covered
// as synced, so the next CollectLocalDelta call doesn't resend them.
func ConfirmUpload(ctx context.Context, s Store, delta *deltacodec.Delta) error {
	return s.MarkSynced(ctx, delta.ID)
}

// ApplyRemoteDelta verifies delta's checksum, replays every operation
// through the LWW-guarded store path, and merges delta's vector clock into
// the local one. It does not consult or advance a per-source cursor; the
// caller (internal/syncpipeline) is responsible for skipping deltas it has
// already applied and for advancing its cursor once this returns nil.
func ApplyRemoteDelta(ctx context.Context, s Store, delta *deltacodec.Delta) error {
	ok, err := delta.Verify()
	if err != nil {
		return fmt.Errorf("verify delta: %w", err)
	}
	if !ok {
		return fmt.Errorf("apply remote delta from %s: %w", delta.DeviceID, store.ErrChecksumMismatch)
	}

	err = s.WithCaptureSuspended(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, op := range delta.Operations {
			switch op.Type {
			case deltacodec.OperationInsert, deltacodec.OperationUpdate:
				payload, err := json.Marshal(op.Data)
				if err != nil {
					return fmt.Errorf("marshal operation payload: %w", err)
				}
				if err := store.UpsertRow(ctx, tx, op.TableName, op.RecordID, payload); err != nil {
					return fmt.Errorf("apply %s %s %s: %w", op.Type, op.TableName, op.RecordID, err)
				}
			case deltacodec.OperationDelete:
				if err := store.DeleteRow(ctx, tx, op.TableName, op.RecordID); err != nil {
					return fmt.Errorf("apply delete %s %s: %w", op.TableName, op.RecordID, err)
				}
			default:
				return fmt.Errorf("unknown operation type %q", op.Type)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	localClock, err := s.GetVectorClock(ctx)
	if err != nil {
		return fmt.Errorf("read local vector clock: %w", err)
	}
	merged := vectorclock.FromMap(localClock).Merge(vectorclock.FromMap(delta.VectorClock.Clocks))
	if err := s.SetVectorClock(ctx, merged.Map()); err != nil {
		return fmt.Errorf("persist merged vector clock: %w", err)
	}

	return nil
}

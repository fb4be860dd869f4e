// Package syncpipeline orchestrates one end-to-end sync cycle: collect and
// upload a local delta, bootstrap a snapshot against an empty bucket, then
// pull, order, and apply remote deltas from every other device. Each step
// is its own transaction boundary so an abort mid-cycle never corrupts
// local state (spec.md §4.7, §5).
package syncpipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/offlinesync/projex/internal/deltacodec"
	"github.com/offlinesync/projex/internal/deltaengine"
	"github.com/offlinesync/projex/internal/objectstore"
	"github.com/offlinesync/projex/internal/snapshotcodec"
	"github.com/offlinesync/projex/internal/syncerr"
)

// Store is everything the pipeline needs from the local database: the
// narrower deltaengine.Store, sync_config access, per-source cursors, and
// full-table export/import for bootstrap snapshotting.
type Store interface {
	deltaengine.Store
	ConfigStore

	GetCursor(ctx context.Context, sourceDeviceID string) (int64, error)
	SetCursor(ctx context.Context, sourceDeviceID string, cursor int64) error
	ExportTables(ctx context.Context) (snapshotcodec.ExportRoot, error)
	ImportTables(ctx context.Context, root snapshotcodec.ExportRoot) error
}

// Result summarizes what one RunOnce call did, for status reporting.
type Result struct {
	UploadedDelta      bool
	UploadedDeltaKey   string
	CreatedBootstrap   bool
	AppliedDeltaCount  int
	SkippedRemoteCount int
}

// Pipeline runs one sync cycle against a Store and an object store client
// built from the device's configured bucket credentials.
type Pipeline struct {
	Store Store
	Log   *slog.Logger

	// Mobile requires the configured endpoint to be https://, per the
	// mobile background entry point in spec.md §4.7 step 1.
	Mobile bool

	// NewClient builds an object store client from a Config. Defaults to
	// objectstore.NewClient; tests override it to return a FakeStore.
	NewClient func(cfg objectstore.Config) (objectstore.Client, error)

	// Now and RandomSuffix are overridable for deterministic tests.
	Now          func() time.Time
	RandomSuffix func() string
}

func (p *Pipeline) newClient() func(objectstore.Config) (objectstore.Client, error) {
	if p.NewClient != nil {
		return p.NewClient
	}
	return objectstore.NewClient
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) randomSuffix() string {
	if p.RandomSuffix != nil {
		return p.RandomSuffix()
	}
	return ulid.Make().String()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// RunOnce executes one sync cycle. On any step failure it best-effort
// records sync_config.last_sync_error and returns the error; it never
// panics and never leaves a partially-applied delta's cursor advanced.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	log := p.logger()
	var result Result

	result, err := p.runOnce(ctx, &result)
	if err != nil {
		recordSyncError(ctx, p.Store, err)
		log.Error("sync cycle failed",
			"component", "syncpipeline",
			"action", "sync_full_failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	if err := finalize(ctx, p.Store, p.now().UTC().Format(time.RFC3339Nano)); err != nil {
		log.Error("sync cycle finalize failed",
			"component", "syncpipeline",
			"action", "sync_full_finalize_failed",
			"error", err,
		)
		return result, err
	}

	log.Info("sync cycle completed",
		"component", "syncpipeline",
		"action", "sync_full",
		"uploaded_delta", result.UploadedDelta,
		"created_bootstrap", result.CreatedBootstrap,
		"applied_delta_count", result.AppliedDeltaCount,
		"skipped_remote_count", result.SkippedRemoteCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) runOnce(ctx context.Context, result *Result) (Result, error) {
	log := p.logger()

	// Step 1: read config snapshot.
	cfg, err := readConfigSnapshot(ctx, p.Store, p.Mobile)
	if err != nil {
		return *result, fmt.Errorf("read config: %w", err)
	}

	// Step 2: build object store client.
	client, err := p.newClient()(objectstore.Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		return *result, fmt.Errorf("build object store client: %w", err)
	}

	// Step 3: collect and upload local delta.
	delta, err := deltaengine.CollectLocalDelta(ctx, p.Store, deltaengine.DefaultCollectLimit)
	if err != nil {
		return *result, fmt.Errorf("collect local delta: %w", err)
	}
	if delta != nil {
		key := deltaKey(cfg.DeviceID, p.now().UnixNano(), p.randomSuffix())
		compressed, err := deltacodec.Compress(delta)
		if err != nil {
			return *result, fmt.Errorf("compress local delta: %w", err)
		}
		if err := client.Upload(ctx, key, compressed); err != nil {
			return *result, fmt.Errorf("upload local delta: %w: %w", err, syncerr.ErrSync)
		}
		if err := deltaengine.ConfirmUpload(ctx, p.Store, delta); err != nil {
			return *result, fmt.Errorf("confirm local delta upload: %w", err)
		}
		result.UploadedDelta = true
		result.UploadedDeltaKey = key
		log.Info("uploaded local delta",
			"component", "syncpipeline", "action", "sync_upload",
			"key", key, "operations", len(delta.Operations),
		)
	}

	// Step 4: bootstrap against an empty bucket.
	if !result.UploadedDelta {
		snapshots, err := client.List(ctx, snapshotPrefix)
		if err != nil {
			return *result, fmt.Errorf("list snapshots: %w: %w", err, syncerr.ErrSync)
		}
		deltas, err := client.List(ctx, deltaPrefix)
		if err != nil {
			return *result, fmt.Errorf("list deltas: %w: %w", err, syncerr.ErrSync)
		}
		if len(snapshots) == 0 && len(deltas) == 0 {
			if err := p.createBootstrapSnapshot(ctx, client, cfg.DeviceID); err != nil {
				return *result, fmt.Errorf("create bootstrap snapshot: %w", err)
			}
			result.CreatedBootstrap = true
			log.Info("created bootstrap snapshot",
				"component", "syncpipeline", "action", "sync_bootstrap",
				"key", snapshotKey(cfg.DeviceID),
			)
		}
	}

	// Step 5: pull remote deltas, filtering by source device and cursor.
	objects, err := client.List(ctx, deltaPrefix)
	if err != nil {
		return *result, fmt.Errorf("list deltas: %w: %w", err, syncerr.ErrSync)
	}

	type candidate struct {
		remoteDelta
		cursor int64
	}
	var candidates []candidate
	for _, obj := range objects {
		rd, err := parseDeltaKey(obj.Key)
		if err != nil {
			log.Warn("skipping unparseable delta key",
				"component", "syncpipeline", "action", "sync_pull_skip", "key", obj.Key, "error", err)
			result.SkippedRemoteCount++
			continue
		}
		if rd.DeviceID == cfg.DeviceID {
			continue
		}
		cursor, err := p.Store.GetCursor(ctx, rd.DeviceID)
		if err != nil {
			return *result, fmt.Errorf("read cursor for %s: %w", rd.DeviceID, err)
		}
		if rd.TS <= cursor {
			continue
		}
		candidates = append(candidates, candidate{remoteDelta: rd, cursor: cursor})
	}

	// Step 6: deterministic apply order.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.TS != b.TS {
			return a.TS < b.TS
		}
		return a.Key < b.Key
	})

	// Step 7: apply each, in order, failing the whole cycle on a checksum
	// mismatch without advancing that source's cursor.
	for _, c := range candidates {
		raw, err := client.Download(ctx, c.Key)
		if err != nil {
			return *result, fmt.Errorf("download %s: %w: %w", c.Key, err, syncerr.ErrSync)
		}
		remote, err := deltacodec.Decompress(raw)
		if err != nil {
			return *result, fmt.Errorf("decompress %s: %w: %w", c.Key, err, syncerr.ErrSync)
		}
		ok, err := remote.Verify()
		if err != nil {
			return *result, fmt.Errorf("verify %s: %w: %w", c.Key, err, syncerr.ErrSync)
		}
		if !ok {
			return *result, fmt.Errorf("checksum mismatch applying %s: %w", c.Key, syncerr.ErrSync)
		}

		if err := deltaengine.ApplyRemoteDelta(ctx, p.Store, remote); err != nil {
			return *result, fmt.Errorf("apply %s: %w", c.Key, err)
		}
		if err := p.Store.SetCursor(ctx, c.DeviceID, c.TS); err != nil {
			return *result, fmt.Errorf("advance cursor for %s: %w", c.DeviceID, err)
		}
		result.AppliedDeltaCount++
		log.Info("applied remote delta",
			"component", "syncpipeline", "action", "sync_apply",
			"key", c.Key, "source_device_id", c.DeviceID, "operations", len(remote.Operations),
		)
	}

	return *result, nil
}

// CreateSnapshot uploads a fresh bootstrap snapshot for deviceID
// unconditionally, regardless of whether the bucket already holds deltas or
// other snapshots. Used by the explicit "create snapshot" surface operation
// (spec.md §6), as opposed to RunOnce's own conditional bootstrap step.
func (p *Pipeline) CreateSnapshot(ctx context.Context, client objectstore.Client, deviceID string) error {
	return p.createBootstrapSnapshot(ctx, client, deviceID)
}

// createBootstrapSnapshot exports every business table, stamps and
// compresses a Snapshot, and uploads it under snapshots/latest-<device>.gz.
func (p *Pipeline) createBootstrapSnapshot(ctx context.Context, client objectstore.Client, deviceID string) error {
	root, err := p.Store.ExportTables(ctx)
	if err != nil {
		return fmt.Errorf("export tables: %w", err)
	}
	data, err := snapshotcodec.EncodeData(root)
	if err != nil {
		return fmt.Errorf("encode export root: %w", err)
	}

	snap := &snapshotcodec.Snapshot{
		Version:   snapshotcodec.FormatVersion,
		DeviceID:  deviceID,
		CreatedAt: p.now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
	if err := snap.Stamp(); err != nil {
		return fmt.Errorf("stamp snapshot: %w", err)
	}

	compressed, err := snapshotcodec.Compress(snap)
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	if err := client.Upload(ctx, snapshotKey(deviceID), compressed); err != nil {
		return fmt.Errorf("upload snapshot: %w: %w", err, syncerr.ErrSync)
	}
	return nil
}

// RestoreSnapshot downloads snapshots/latest-<sourceDeviceID>.gz, verifies
// it, and replaces every business table's contents with its export — used
// for disaster recovery or attaching a fresh device to an existing bucket.
func RestoreSnapshot(ctx context.Context, s Store, client objectstore.Client, sourceDeviceID string) error {
	raw, err := client.Download(ctx, snapshotKey(sourceDeviceID))
	if err != nil {
		return fmt.Errorf("download snapshot: %w: %w", err, syncerr.ErrSync)
	}
	snap, err := snapshotcodec.Decompress(raw)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w: %w", err, syncerr.ErrSync)
	}
	ok, err := snap.Verify()
	if err != nil {
		return fmt.Errorf("verify snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot checksum mismatch: %w", syncerr.ErrSync)
	}
	root, err := snapshotcodec.DecodeData(snap.Data)
	if err != nil {
		return fmt.Errorf("decode snapshot data: %w", err)
	}
	return s.ImportTables(ctx, root)
}

// Package syncengine is the embeddable facade an outer application (CLI,
// daemon, or host process) calls into to drive the sync subsystem — one
// method per spec.md §6 surface operation, grounded on the
// method-per-surface-operation shape of the teacher's pkg/recall.Client.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/offlinesync/projex/internal/objectstore"
	"github.com/offlinesync/projex/internal/store"
	"github.com/offlinesync/projex/internal/syncerr"
	"github.com/offlinesync/projex/internal/syncpipeline"
	"github.com/offlinesync/projex/internal/syncruntime"
)

// Config is the full bucket connection + scheduling state reported by
// GetConfig. SecretKey is always redacted; use RevealSecretKey to fetch it.
type Config struct {
	DeviceID                string
	Bucket                  string
	Endpoint                string
	AccessKey               string
	SecretKeyRedacted       string
	SyncEnabled             bool
	AutoSyncIntervalMinutes int
	LastSync                string
	LastSyncError           string
}

// UpdateConfigParams carries the fields a caller may change; a nil pointer
// leaves that field untouched.
type UpdateConfigParams struct {
	Bucket                  *string
	Endpoint                *string
	AccessKey               *string
	SecretKey               *string
	AutoSyncIntervalMinutes *int
}

// Status is the result of GetStatus: UI-facing sync health.
type Status struct {
	IsSyncing     bool
	PendingChanges int
	LastSync      string
	LastSyncError string
}

// ExportedConfig is the device-to-device setup payload described in
// spec.md §6 "Sync configuration export".
type ExportedConfig struct {
	Version                 int    `json:"version"`
	ExportedAt              string `json:"exported_at"`
	Bucket                  string `json:"bucket"`
	Endpoint                string `json:"endpoint"`
	AccessKey               string `json:"access_key"`
	SecretKey               string `json:"secret_key"`
	AutoSyncIntervalMinutes int    `json:"auto_sync_interval_minutes"`
}

// BackgroundResult is returned by RunMobileBackground.
type BackgroundResult struct {
	Status  string // "ok" | "skipped" | "failed"
	Message string
}

const exportConfigVersion = 1

// Engine wires together the local store, the sync pipeline, and the
// runtime concurrency primitives into the operations an outer command
// surface calls.
type Engine struct {
	Store       *store.SQLiteStore
	Mutex       *syncruntime.Mutex
	Scheduler   *syncruntime.Scheduler
	ProcessLock *syncruntime.ProcessLock
	Log         *slog.Logger

	// NewClient overrides the object store client constructor; nil uses
	// objectstore.NewClient.
	NewClient func(objectstore.Config) (objectstore.Client, error)

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New builds an Engine around an already-open store, with a fresh mutex and
// a scheduler wired to this engine's own config and Full method.
func New(s *store.SQLiteStore, lockPath string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		Store:       s,
		Mutex:       syncruntime.NewMutex(),
		ProcessLock: syncruntime.NewProcessLock(lockPath),
		Log:         log,
	}
	e.Scheduler = syncruntime.NewScheduler(schedulerConfigReader{s}, e.Mutex, func(ctx context.Context) error {
		// The scheduler already holds e.Mutex for the duration of this call,
		// so this runs the pipeline directly rather than through Full (which
		// would try to re-acquire the same mutex and deadlock).
		_, err := e.pipeline(false).RunOnce(ctx)
		return err
	}, log)
	return e
}

type schedulerConfigReader struct{ s *store.SQLiteStore }

func (r schedulerConfigReader) SchedulerConfig(ctx context.Context) (bool, int, error) {
	enabled, err := r.s.IsSyncEnabled(ctx)
	if err != nil {
		return false, 0, err
	}
	snap, err := readConfigSnapshotOrZero(ctx, r.s)
	if err != nil {
		return false, 0, err
	}
	return enabled, snap.AutoSyncIntervalMinutes, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) pipeline(mobile bool) *syncpipeline.Pipeline {
	return &syncpipeline.Pipeline{
		Store:     e.Store,
		Log:       e.Log,
		Mobile:    mobile,
		NewClient: e.NewClient,
		Now:       e.now,
	}
}

func (e *Engine) newObjectClient(ctx context.Context) (objectstore.Client, Config, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return nil, Config{}, err
	}
	secretKey, err := e.RevealSecretKey(ctx)
	if err != nil {
		return nil, Config{}, err
	}
	newClient := objectstore.NewClient
	if e.NewClient != nil {
		newClient = e.NewClient
	}
	client, err := newClient(objectstore.Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: secretKey,
	})
	if err != nil {
		return nil, Config{}, fmt.Errorf("build object store client: %w", err)
	}
	return client, cfg, nil
}

// GetConfig reads the current sync configuration, with the secret key
// always redacted.
func (e *Engine) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config
	cfg.DeviceID = e.Store.DeviceID()

	get := func(key string) (string, error) {
		v, _, err := e.Store.GetSyncConfig(ctx, key)
		return v, err
	}

	var err error
	if cfg.Bucket, err = get("s3_bucket"); err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	if cfg.Endpoint, err = get("s3_endpoint"); err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	if cfg.AccessKey, err = get("s3_access_key"); err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	if cfg.LastSync, err = get("last_sync"); err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	if cfg.LastSyncError, err = get("last_sync_error"); err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}

	secretKey, err := get("s3_secret_key")
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	cfg.SecretKeyRedacted = redact(secretKey)

	interval, err := get("auto_sync_interval_minutes")
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	cfg.AutoSyncIntervalMinutes = syncpipeline.DefaultAutoSyncIntervalMinutes
	if n, err := parsePositiveInt(interval); err == nil {
		cfg.AutoSyncIntervalMinutes = n
	}

	cfg.SyncEnabled, err = e.Store.IsSyncEnabled(ctx)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}

	return cfg, nil
}

func readConfigSnapshotOrZero(ctx context.Context, s *store.SQLiteStore) (Config, error) {
	e := &Engine{Store: s}
	return e.GetConfig(ctx)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be >= 1")
	}
	return n, nil
}

// UpdateConfig overwrites the given fields and refreshes the scheduler so a
// changed interval takes effect immediately.
func (e *Engine) UpdateConfig(ctx context.Context, params UpdateConfigParams) error {
	set := func(key, value string) error {
		return e.Store.SetSyncConfig(ctx, key, value)
	}

	if params.Bucket != nil {
		if err := set("s3_bucket", *params.Bucket); err != nil {
			return err
		}
	}
	if params.Endpoint != nil {
		if err := set("s3_endpoint", *params.Endpoint); err != nil {
			return err
		}
	}
	if params.AccessKey != nil {
		if err := set("s3_access_key", *params.AccessKey); err != nil {
			return err
		}
	}
	if params.SecretKey != nil {
		if err := set("s3_secret_key", *params.SecretKey); err != nil {
			return err
		}
	}
	if params.AutoSyncIntervalMinutes != nil {
		n := *params.AutoSyncIntervalMinutes
		if n < 1 {
			n = 1
		}
		if err := set("auto_sync_interval_minutes", fmt.Sprintf("%d", n)); err != nil {
			return err
		}
	}

	if e.Scheduler != nil {
		e.Scheduler.Refresh(ctx)
	}
	return nil
}

// SetEnabled flips sync_enabled and refreshes the scheduler accordingly.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	if err := e.Store.SetSyncEnabled(ctx, enabled); err != nil {
		return err
	}
	if e.Scheduler != nil {
		e.Scheduler.Refresh(ctx)
	}
	return nil
}

// TestConnection builds an object store client from the current
// configuration and verifies connectivity.
func (e *Engine) TestConnection(ctx context.Context) error {
	client, _, err := e.newObjectClient(ctx)
	if err != nil {
		return err
	}
	if err := client.TestConnection(ctx); err != nil {
		return fmt.Errorf("%w: %w", err, syncerr.ErrSync)
	}
	return nil
}

// Full runs one complete sync cycle, serialized by the engine's Mutex.
func (e *Engine) Full(ctx context.Context) (syncpipeline.Result, error) {
	if err := e.Mutex.Lock(ctx); err != nil {
		return syncpipeline.Result{}, err
	}
	defer e.Mutex.Unlock()
	return e.pipeline(false).RunOnce(ctx)
}

// CreateSnapshot uploads a bootstrap-style full-table snapshot for this
// device, independent of whether the bucket is already non-empty.
func (e *Engine) CreateSnapshot(ctx context.Context) (string, error) {
	client, cfg, err := e.newObjectClient(ctx)
	if err != nil {
		return "", err
	}
	p := e.pipeline(false)
	if err := p.CreateSnapshot(ctx, client, cfg.DeviceID); err != nil {
		return "", err
	}
	return cfg.DeviceID, nil
}

// RestoreSnapshot downloads and applies sourceDeviceID's latest snapshot,
// replacing every local business table.
func (e *Engine) RestoreSnapshot(ctx context.Context, sourceDeviceID string) error {
	client, _, err := e.newObjectClient(ctx)
	if err != nil {
		return err
	}
	return syncpipeline.RestoreSnapshot(ctx, e.Store, client, sourceDeviceID)
}

// GetStatus reports sync health for UI display.
func (e *Engine) GetStatus(ctx context.Context) (Status, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return Status{}, err
	}
	entries, err := e.Store.GetChangeLogAfter(ctx, 0, 1<<30)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	return Status{
		IsSyncing:      e.Mutex.IsSyncing(),
		PendingChanges: len(entries),
		LastSync:       cfg.LastSync,
		LastSyncError:  cfg.LastSyncError,
	}, nil
}

// RevealSecretKey returns the unredacted s3_secret_key, for a caller that
// has already gated this behind its own confirmation UI.
func (e *Engine) RevealSecretKey(ctx context.Context) (string, error) {
	secretKey, _, err := e.Store.GetSyncConfig(ctx, "s3_secret_key")
	if err != nil {
		return "", fmt.Errorf("%w: %w", err, syncerr.ErrDB)
	}
	return secretKey, nil
}

// ExportConfig returns the device-to-device setup payload (spec.md §6).
func (e *Engine) ExportConfig(ctx context.Context) (ExportedConfig, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return ExportedConfig{}, err
	}
	secretKey, err := e.RevealSecretKey(ctx)
	if err != nil {
		return ExportedConfig{}, err
	}
	return ExportedConfig{
		Version:                 exportConfigVersion,
		ExportedAt:              e.now().UTC().Format(time.RFC3339Nano),
		Bucket:                  cfg.Bucket,
		Endpoint:                cfg.Endpoint,
		AccessKey:               cfg.AccessKey,
		SecretKey:               secretKey,
		AutoSyncIntervalMinutes: cfg.AutoSyncIntervalMinutes,
	}, nil
}

// ImportConfig applies an ExportedConfig, overwriting only non-empty
// fields and never touching device_id, sync_enabled, or last_sync (spec.md
// §6).
func (e *Engine) ImportConfig(ctx context.Context, cfg ExportedConfig) error {
	if cfg.Version != exportConfigVersion {
		return fmt.Errorf("unsupported config export version %d: %w", cfg.Version, syncerr.ErrValidation)
	}

	params := UpdateConfigParams{}
	if cfg.Bucket != "" {
		params.Bucket = &cfg.Bucket
	}
	if cfg.Endpoint != "" {
		params.Endpoint = &cfg.Endpoint
	}
	if cfg.AccessKey != "" {
		params.AccessKey = &cfg.AccessKey
	}
	if cfg.SecretKey != "" {
		params.SecretKey = &cfg.SecretKey
	}
	if cfg.AutoSyncIntervalMinutes > 0 {
		params.AutoSyncIntervalMinutes = &cfg.AutoSyncIntervalMinutes
	}
	return e.UpdateConfig(ctx, params)
}

// RunMobileBackground is the mobile background worker entry point: it
// acquires the OS-level file lock before the in-process mutex (always in
// that order, per spec.md §9), runs one mobile-mode cycle, and reports
// "skipped" rather than blocking on contention.
func (e *Engine) RunMobileBackground(ctx context.Context) BackgroundResult {
	acquired, err := e.ProcessLock.TryAcquire()
	if err != nil {
		return BackgroundResult{Status: "failed", Message: err.Error()}
	}
	if !acquired {
		return BackgroundResult{Status: "skipped", Message: "another process is syncing"}
	}
	defer e.ProcessLock.Release()

	if !e.Mutex.TryLock() {
		return BackgroundResult{Status: "skipped", Message: "a sync cycle is already in progress"}
	}
	defer e.Mutex.Unlock()

	if _, err := e.pipeline(true).RunOnce(ctx); err != nil {
		return BackgroundResult{Status: "failed", Message: err.Error()}
	}
	return BackgroundResult{Status: "ok"}
}

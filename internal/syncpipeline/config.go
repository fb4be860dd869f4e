package syncpipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/offlinesync/projex/internal/syncerr"
)

// sync_config keys this package reads/writes, layered on top of the keys
// internal/store already owns (device_id, sync_enabled, apply_in_progress).
const (
	configKeyBucket               = "s3_bucket"
	configKeyEndpoint             = "s3_endpoint"
	configKeyAccessKey            = "s3_access_key"
	configKeySecretKey            = "s3_secret_key"
	configKeyAutoSyncIntervalMins = "auto_sync_interval_minutes"
	configKeyLastSync             = "last_sync"
	configKeyLastSyncError        = "last_sync_error"
)

// DefaultAutoSyncIntervalMinutes is used when auto_sync_interval_minutes is
// unset, per spec.md §6.
const DefaultAutoSyncIntervalMinutes = 1

// ConfigSnapshot is the bucket connection state read under a short critical
// section at the start of a cycle (spec.md §4.7 step 1).
type ConfigSnapshot struct {
	DeviceID                string
	Bucket                  string
	Endpoint                string
	AccessKey               string
	SecretKey               string
	AutoSyncIntervalMinutes int
}

// ConfigStore is the sync_config kv access the pipeline needs.
type ConfigStore interface {
	DeviceID() string
	GetSyncConfig(ctx context.Context, key string) (value string, ok bool, err error)
	SetSyncConfig(ctx context.Context, key, value string) error
}

// readConfigSnapshot reads the fields required for a sync cycle. requireHTTPS
// is set on the mobile background path (spec.md §4.7 step 1), which rejects
// any endpoint that isn't https://.
func readConfigSnapshot(ctx context.Context, s ConfigStore, requireHTTPS bool) (ConfigSnapshot, error) {
	var snap ConfigSnapshot
	snap.DeviceID = s.DeviceID()

	bucket, _, err := s.GetSyncConfig(ctx, configKeyBucket)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", configKeyBucket, err)
	}
	accessKey, _, err := s.GetSyncConfig(ctx, configKeyAccessKey)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", configKeyAccessKey, err)
	}
	secretKey, _, err := s.GetSyncConfig(ctx, configKeySecretKey)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", configKeySecretKey, err)
	}
	endpoint, _, err := s.GetSyncConfig(ctx, configKeyEndpoint)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", configKeyEndpoint, err)
	}

	if snap.DeviceID == "" || bucket == "" || accessKey == "" || secretKey == "" {
		return snap, fmt.Errorf("device_id/%s/%s/%s: %w",
			configKeyBucket, configKeyAccessKey, configKeySecretKey, syncerr.ErrSyncConfigIncomplete)
	}
	if requireHTTPS && !strings.HasPrefix(endpoint, "https://") {
		return snap, fmt.Errorf("mobile background sync requires an https:// endpoint: %w", syncerr.ErrValidation)
	}

	snap.Bucket = bucket
	snap.AccessKey = accessKey
	snap.SecretKey = secretKey
	snap.Endpoint = endpoint

	intervalStr, ok, err := s.GetSyncConfig(ctx, configKeyAutoSyncIntervalMins)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", configKeyAutoSyncIntervalMins, err)
	}
	interval := DefaultAutoSyncIntervalMinutes
	if ok {
		if parsed, err := strconv.Atoi(intervalStr); err == nil && parsed >= 1 {
			interval = parsed
		}
	}
	snap.AutoSyncIntervalMinutes = interval

	return snap, nil
}

// recordSyncError best-effort records the cycle's failure on sync_config;
// failing to record it is itself ignored (spec.md §7 propagation policy).
func recordSyncError(ctx context.Context, s ConfigStore, cycleErr error) {
	if cycleErr == nil {
		return
	}
	_ = s.SetSyncConfig(ctx, configKeyLastSyncError, cycleErr.Error())
}

// finalize sets last_sync to now and clears last_sync_error.
func finalize(ctx context.Context, s ConfigStore, nowRFC3339 string) error {
	if err := s.SetSyncConfig(ctx, configKeyLastSync, nowRFC3339); err != nil {
		return fmt.Errorf("set %s: %w", configKeyLastSync, err)
	}
	if err := s.SetSyncConfig(ctx, configKeyLastSyncError, ""); err != nil {
		return fmt.Errorf("clear %s: %w", configKeyLastSyncError, err)
	}
	return nil
}

package syncruntime_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/offlinesync/projex/internal/syncruntime"
)

type fakeConfigReader struct {
	enabled         atomic.Bool
	intervalMinutes int
}

func (f *fakeConfigReader) SchedulerConfig(ctx context.Context) (bool, int, error) {
	return f.enabled.Load(), f.intervalMinutes, nil
}

func TestSchedulerDoesNotStartWhenDisabled(t *testing.T) {
	cfg := &fakeConfigReader{intervalMinutes: 1}
	cfg.enabled.Store(false)

	var runs atomic.Int32
	sched := syncruntime.NewScheduler(cfg, syncruntime.NewMutex(), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	sched.Refresh(context.Background())
	time.Sleep(30 * time.Millisecond)
	sched.Stop()

	if runs.Load() != 0 {
		t.Errorf("expected no runs while disabled, got %d", runs.Load())
	}
}

func TestSchedulerRefreshReplacesRunningLoop(t *testing.T) {
	cfg := &fakeConfigReader{intervalMinutes: 1}
	cfg.enabled.Store(true)

	var runs atomic.Int32
	sched := syncruntime.NewScheduler(cfg, syncruntime.NewMutex(), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	sched.Refresh(context.Background())
	sched.Refresh(context.Background()) // must not deadlock or leak a second loop
	sched.Stop()
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	cfg := &fakeConfigReader{intervalMinutes: 1}
	sched := syncruntime.NewScheduler(cfg, syncruntime.NewMutex(), func(ctx context.Context) error {
		return nil
	}, nil)

	sched.Stop() // never started
	sched.Refresh(context.Background())
	sched.Stop()
	sched.Stop() // already stopped
}

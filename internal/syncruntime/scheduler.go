package syncruntime

import (
	"context"
	"log/slog"
	"time"
)

// ConfigReader re-reads the scheduler-relevant sync_config fields on every
// loop iteration, so a user disabling sync or changing the interval takes
// effect without restarting the process.
type ConfigReader interface {
	// SchedulerConfig returns whether sync is enabled and the configured
	// auto_sync_interval_minutes (clamped to >= 1 by the caller).
	SchedulerConfig(ctx context.Context) (enabled bool, intervalMinutes int, err error)
}

// Scheduler is a single suspendable background task per process that runs a
// sync cycle on a timer, re-reading configuration every iteration.
// RefreshScheduler aborts and replaces it at any time (spec.md §4.8).
type Scheduler struct {
	config ConfigReader
	mutex  *Mutex
	run    func(ctx context.Context) error
	log    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a Scheduler. run is called once per tick while
// holding mutex; it should be a thin wrapper around a Pipeline.RunOnce call
// that discards the Result.
func NewScheduler(config ConfigReader, mutex *Mutex, run func(ctx context.Context) error, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{config: config, mutex: mutex, run: run, log: log}
}

// Refresh aborts any existing scheduler loop and, if sync is currently
// enabled, spawns a new one. It returns once the previous loop (if any) has
// fully stopped, so callers never observe two loops running concurrently.
func (s *Scheduler) Refresh(ctx context.Context) {
	s.Stop()

	enabled, intervalMinutes, err := s.config.SchedulerConfig(ctx)
	if err != nil {
		s.log.Error("scheduler refresh failed to read config",
			"component", "syncruntime", "action", "scheduler_refresh_failed", "error", err)
		return
	}
	if !enabled {
		s.log.Info("scheduler refresh: sync disabled, not starting",
			"component", "syncruntime", "action", "scheduler_refresh")
		return
	}
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, time.Duration(intervalMinutes)*time.Minute)
}

// Stop aborts the running loop, if any, and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	s.log.Info("scheduler started",
		"component", "syncruntime", "action", "scheduler_started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped",
				"component", "syncruntime", "action", "scheduler_stopped", "reason", "context_cancelled")
			return
		case <-ticker.C:
			enabled, _, err := s.config.SchedulerConfig(ctx)
			if err != nil {
				s.log.Error("scheduler failed to re-read config",
					"component", "syncruntime", "action", "scheduler_tick_failed", "error", err)
				continue
			}
			if !enabled {
				s.log.Info("scheduler stopping: sync disabled",
					"component", "syncruntime", "action", "scheduler_stopped", "reason", "disabled")
				return
			}
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.mutex.Lock(ctx); err != nil {
		return
	}
	defer s.mutex.Unlock()

	if err := s.run(ctx); err != nil {
		s.log.Error("scheduled sync cycle failed",
			"component", "syncruntime", "action", "scheduler_cycle_failed", "error", err)
	}
}

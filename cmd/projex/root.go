package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/offlinesync/projex/internal/config"
	"github.com/offlinesync/projex/internal/store"
	"github.com/offlinesync/projex/pkg/syncengine"
)

// Version information set at build time via ldflags:
//
//	-X main.Version=1.0.0
//	-X main.Commit=abc1234
//	-X main.Date=2026-01-30T12:00:00Z
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "projex",
	Short: "projex - offline-first relational data sync engine",
	RunE:  runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("projex %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mobileBackgroundCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// openEngine loads configuration, initializes logging, and opens the local
// store and sync engine shared by every subcommand.
func openEngine(ctx context.Context) (*config.Config, *syncengine.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	dataDir := expandHome(cfg.Data.Dir)
	dbPath := filepath.Join(dataDir, "projex.db")
	lockPath := filepath.Join(dataDir, "sync.lock")

	s, err := store.NewSQLiteStore(dbPath, uuid.NewString())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	engine := syncengine.New(s, lockPath, logger)

	cleanup := func() {
		engine.Scheduler.Stop()
		if err := s.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}

	return cfg, engine, cleanup, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// runDaemon is the default command: it runs the auto-sync scheduler
// (spec.md §4.8) until interrupted, entirely in-process.
func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	_, engine, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("projex daemon starting", "device_id", engine.Store.DeviceID())
	engine.Scheduler.Refresh(ctx)

	<-ctx.Done()
	slog.Info("shutdown initiated")
	engine.Scheduler.Stop()
	slog.Info("shutdown complete")
	return nil
}

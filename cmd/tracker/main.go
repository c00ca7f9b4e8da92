package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/tracker/internal/api"
	"github.com/antigravity-dev/tracker/internal/backlog"
	"github.com/antigravity-dev/tracker/internal/config"
	"github.com/antigravity-dev/tracker/internal/lockfile"
	"github.com/antigravity-dev/tracker/internal/sprint"
	"github.com/antigravity-dev/tracker/internal/store"
	"github.com/antigravity-dev/tracker/internal/temporal"
)

// logLevel is shared by every handler configureLogger builds, so a reload
// reaches component loggers derived with With.
var logLevel slog.LevelVar

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func configureLogger(level string, useDev bool) *slog.Logger {
	logLevel.Set(parseLogLevel(level))

	opts := &slog.HandlerOptions{Level: &logLevel}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// batchBackend is the item updater the sprint manager and API use, plus
// whatever has to be torn down with it.
type batchBackend struct {
	updater sprint.ItemUpdater
	client  client.Client
	worker  worker.Worker
}

func (b *batchBackend) Close() {
	if b.worker != nil {
		b.worker.Stop()
	}
	if b.client != nil {
		b.client.Close()
	}
}

func openBatchBackend(cfg *config.Config, st *store.Store, logger *slog.Logger) (*batchBackend, error) {
	if cfg.Batch.Mode != config.BatchWorkflow {
		return &batchBackend{updater: st}, nil
	}

	c, err := temporal.Dial(cfg.Temporal.HostPort, logger.With("component", "temporal"))
	if err != nil {
		return nil, err
	}
	w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue, st)
	if err != nil {
		c.Close()
		return nil, err
	}
	d := temporal.NewDispatcher(c, cfg.Temporal.TaskQueue, cfg.Batch.Timeout.Duration, logger.With("component", "batch"))
	return &batchBackend{updater: d, client: c, worker: w}, nil
}

// runBackup copies the state database to dest and verifies the copy. It
// does not take the instance lock, so it can run next to a live server.
func runBackup(dbPath, dest string, logger *slog.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	start := time.Now()
	if err := st.Backup(ctx, dest); err != nil {
		return err
	}
	info, err := store.VerifyBackup(ctx, dest)
	if err != nil {
		return err
	}
	logger.Info("backup written",
		"path", dest,
		"duration", time.Since(start).String(),
		"table_counts", info.TableCounts)
	return nil
}

func main() {
	configPath := flag.String("config", "tracker.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	setBatchMode := flag.String("set-batch-mode", "", "set [batch].mode in config (atomic or workflow) and exit")
	setSprintLength := flag.String("set-sprint-length", "", "set [sprint].default_length in config (e.g. 168h) and exit")
	backupPath := flag.String("backup", "", "write a verified copy of the state database to this path and exit")
	verifyBackup := flag.String("verify-backup", "", "check a backup file's integrity and row counts and exit")
	flag.Parse()

	bootstrapLogger := configureLogger("info", *dev)

	if *setBatchMode != "" {
		changed, err := setBatchModeInConfigFile(*configPath, *setBatchMode)
		if err != nil {
			bootstrapLogger.Error("failed to set batch mode", "config", *configPath, "error", err)
			os.Exit(1)
		}
		bootstrapLogger.Info("batch mode updated", "config", *configPath, "mode", *setBatchMode, "changed", changed)
		return
	}
	if *setSprintLength != "" {
		changed, err := setSprintLengthInConfigFile(*configPath, *setSprintLength)
		if err != nil {
			bootstrapLogger.Error("failed to set sprint length", "config", *configPath, "error", err)
			os.Exit(1)
		}
		bootstrapLogger.Info("sprint length updated", "config", *configPath, "default_length", *setSprintLength, "changed", changed)
		return
	}

	if *verifyBackup != "" {
		info, err := store.VerifyBackup(context.Background(), config.ExpandHome(*verifyBackup))
		if err != nil {
			bootstrapLogger.Error("backup verification failed", "backup", *verifyBackup, "error", err)
			os.Exit(1)
		}
		bootstrapLogger.Info("backup verified", "backup", *verifyBackup, "table_counts", info.TableCounts, "schema_version", info.SchemaVersion)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfgManager := config.NewRWMutexManager(cfg)

	logger := configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	// The scale is fixed for the life of the process; reloads do not change it.
	backlog.StoryPointScale = slices.Clone(cfg.Sprint.StoryPointScale)

	dbPath := config.ExpandHome(cfg.General.StateDB)
	if *backupPath != "" {
		if err := runBackup(dbPath, config.ExpandHome(*backupPath), logger); err != nil {
			logger.Error("backup failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if dbPath != ":memory:" {
		lock, err := lockfile.Acquire(lockfile.PathFor(dbPath))
		if err != nil {
			logger.Error("failed to acquire lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	backend, err := openBatchBackend(cfg, st, logger)
	if err != nil {
		logger.Error("failed to set up batch backend", "mode", cfg.Batch.Mode, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	sprints, err := sprint.NewManager(st, backend.updater, logger.With("component", "sprint"),
		sprint.WithDefaultLength(cfg.Sprint.DefaultLength.Duration))
	if err != nil {
		logger.Error("failed to create sprint manager", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiSrv := api.NewServer(cfgManager, st, sprints, backend.updater, logger.With("component", "api"))
	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server error", "error", err)
			cancel()
		}
	}()

	logger.Info("tracker running",
		"bind", cfg.API.Bind,
		"state_db", dbPath,
		"batch_mode", cfg.Batch.Mode,
		"sprint_length", cfg.Sprint.DefaultLength.Duration.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ctx.Done():
			logger.Info("tracker stopped")
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := cfgManager.Reload(*configPath); err != nil {
					logger.Error(fmt.Sprintf("config reload failed: %v", err))
					continue
				}
				next := cfgManager.Get()
				if next.Batch.Mode != cfg.Batch.Mode {
					logger.Warn("batch mode change takes effect after restart", "running", cfg.Batch.Mode, "configured", next.Batch.Mode)
				}
				logLevel.Set(parseLogLevel(next.General.LogLevel))
				logger.Info("config reloaded", "log_level", logLevel.Level().String())
			default:
				shutdownStart := time.Now()
				logger.Info("received signal, shutting down", "signal", sig)
				cancel()
				logger.Info("tracker stopped", "shutdown_duration", time.Since(shutdownStart).String())
				return
			}
		}
	}
}

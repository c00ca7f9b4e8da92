package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/tracker/internal/config"
	"github.com/antigravity-dev/tracker/internal/store"
)

func TestConfigureLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		logger := configureLogger(tt.level, true)
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v should be enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("level %q: %v should be filtered", tt.level, tt.want-4)
		}
	}
}

func TestReloadedLevelReachesComponentLoggers(t *testing.T) {
	logger := configureLogger("info", true)
	component := logger.With("component", "sprint")
	ctx := context.Background()
	if component.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug should start filtered")
	}

	logLevel.Set(parseLogLevel("debug"))
	if !component.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("component logger did not pick up the reloaded level")
	}

	logLevel.Set(parseLogLevel("error"))
	if component.Enabled(ctx, slog.LevelWarn) {
		t.Fatal("warn should be filtered after raising the level to error")
	}
}

func TestOpenBatchBackendAtomicUsesStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	cfg := &config.Config{Batch: config.Batch{Mode: config.BatchAtomic}}
	backend, err := openBatchBackend(cfg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	if backend.updater != st {
		t.Fatalf("atomic mode should apply batches through the store, got %T", backend.updater)
	}
	if backend.client != nil || backend.worker != nil {
		t.Fatal("atomic mode must not dial temporal")
	}
}

func TestRunBackupWritesVerifiedCopy(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tracker.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	dest := filepath.Join(dir, "tracker-backup.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := runBackup(dbPath, dest, logger); err != nil {
		t.Fatalf("runBackup: %v", err)
	}
	if err := runBackup(dbPath, dest, logger); err == nil {
		t.Fatal("second backup to the same path should fail")
	}
}

package config

import (
	"strings"
	"sync"
	"testing"
)

func TestRWMutexManagerGetSet(t *testing.T) {
	initial := &Config{General: General{LogLevel: "info"}}
	mgr := NewRWMutexManager(initial)

	got := mgr.Get()
	if got == nil {
		t.Fatal("expected initial config snapshot")
	}
	if got == initial {
		t.Fatal("expected manager to store cloned config on bootstrap")
	}
	if got != mgr.Get() {
		t.Fatal("expected repeated Get to return same live snapshot")
	}

	next := &Config{General: General{LogLevel: "debug"}}
	mgr.Set(next)
	next.General.LogLevel = "error"

	updated := mgr.Get()
	if updated == next {
		t.Fatal("expected manager to clone Set input")
	}
	if updated.General.LogLevel != "debug" {
		t.Fatalf("expected Set to keep its own snapshot, got %q", updated.General.LogLevel)
	}
}

func TestRWMutexManagerReload(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	mgr := NewRWMutexManager(nil)

	if err := mgr.Reload(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	cfg := mgr.Get()
	if cfg == nil || cfg.Batch.Mode != BatchWorkflow {
		t.Fatalf("expected populated config from file, got %+v", cfg)
	}
}

func TestRWMutexManagerReloadRequiresPath(t *testing.T) {
	mgr := NewRWMutexManager(&Config{})
	if err := mgr.Reload(""); err == nil {
		t.Fatal("expected error for empty reload path")
	}
}

func TestRWMutexManagerReloadKeepsConfigOnError(t *testing.T) {
	initial, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}
	mgr := NewRWMutexManager(initial)

	if err := mgr.Reload(writeTestConfig(t, "[batch]\nmode = \"nope\"\n")); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
	if got := mgr.Get().Batch.Mode; got != BatchWorkflow {
		t.Fatalf("config changed after failed reload: mode %q", got)
	}
}

func TestRWMutexManagerReloadRefusesRestartOnlySettings(t *testing.T) {
	initial, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{name: "api bind", from: `bind = "127.0.0.1:9100"`, to: `bind = "0.0.0.0:9100"`, wantErr: "api.bind"},
		{name: "state db", from: `state_db = "/tmp/tracker-test.db"`, to: `state_db = "/tmp/other.db"`, wantErr: "state_db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewRWMutexManager(initial)
			changed := strings.Replace(validConfig, tt.from, tt.to, 1)
			err := mgr.Reload(writeTestConfig(t, changed))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %s change to be refused, got %v", tt.wantErr, err)
			}
			if mgr.Get().API.Bind != "127.0.0.1:9100" {
				t.Fatal("config swapped despite refused reload")
			}
		})
	}

	t.Run("other settings reload", func(t *testing.T) {
		mgr := NewRWMutexManager(initial)
		changed := strings.Replace(validConfig, `timeout = "45s"`, `timeout = "90s"`, 1)
		if err := mgr.Reload(writeTestConfig(t, changed)); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if got := mgr.Get().Batch.Timeout.String(); got != "1m30s" {
			t.Fatalf("timeout = %s, want 1m30s", got)
		}
	})
}

func TestRWMutexManagerConcurrentReadWithWrites(t *testing.T) {
	mgr := NewRWMutexManager(&Config{General: General{LogLevel: "info"}})

	var wg sync.WaitGroup
	for r := 0; r < 16; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if cfg := mgr.Get(); cfg == nil || cfg.General.LogLevel == "" {
					t.Error("observed empty config")
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		level := "info"
		if i%2 == 0 {
			level = "debug"
		}
		mgr.Set(&Config{General: General{LogLevel: level}})
	}
	wg.Wait()
}

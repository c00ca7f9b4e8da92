package config

import (
	"fmt"
	"sync"
)

// ConfigManager provides thread-safe access to live configuration.
type ConfigManager interface {
	Get() *Config
	Set(cfg *Config)
	Reload(path string) error
}

// RWMutexManager provides thread-safe read-heavy config access using RWMutex.
// It keeps its own copy, so callers mutating a config they passed to Set do
// not affect readers.
type RWMutexManager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewRWMutexManager constructs a manager with an initial config.
func NewRWMutexManager(initial *Config) *RWMutexManager {
	return &RWMutexManager{cfg: initial.Clone()}
}

// Get returns the current config snapshot under a shared lock. Treat it as
// read-only.
func (m *RWMutexManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Set replaces the current config under an exclusive lock.
func (m *RWMutexManager) Set(cfg *Config) {
	next := cfg.Clone()
	m.mu.Lock()
	m.cfg = next
	m.mu.Unlock()
}

// Reload loads config from path and swaps it into place. Settings bound at
// startup (state_db and api.bind) cannot change without a restart; a reload
// that changes them is rejected and the current config is kept.
func (m *RWMutexManager) Reload(path string) error {
	if path == "" {
		return fmt.Errorf("config reload path is required")
	}

	loaded, err := Load(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.cfg; cur != nil {
		if loaded.General.StateDB != cur.General.StateDB {
			return fmt.Errorf("config reload: state_db changed from %q to %q; restart required", cur.General.StateDB, loaded.General.StateDB)
		}
		if loaded.API.Bind != cur.API.Bind {
			return fmt.Errorf("config reload: api.bind changed from %q to %q; restart required", cur.API.Bind, loaded.API.Bind)
		}
	}
	m.cfg = loaded
	return nil
}

var _ ConfigManager = (*RWMutexManager)(nil)

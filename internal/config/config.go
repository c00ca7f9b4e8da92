// Package config loads and validates the tracker TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s" or "336h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Batch modes.
const (
	BatchAtomic   = "atomic"
	BatchWorkflow = "workflow"
)

type Config struct {
	General  General            `toml:"general"`
	Projects map[string]Project `toml:"projects"`
	Sprint   Sprint             `toml:"sprint"`
	Batch    Batch              `toml:"batch"`
	Temporal Temporal           `toml:"temporal"`
	API      API                `toml:"api"`
}

type General struct {
	LogLevel string `toml:"log_level"`
	StateDB  string `toml:"state_db"`
}

type Project struct {
	Enabled         bool   `toml:"enabled"`
	Name            string `toml:"name"`             // display name (default: the table key)
	DefaultAssignee string `toml:"default_assignee"` // applied to new items without an assignee
}

type Sprint struct {
	DefaultLength   Duration `toml:"default_length"`    // default 336h (two weeks)
	StoryPointScale []int    `toml:"story_point_scale"` // default Fibonacci 1..21
}

type Batch struct {
	Mode    string   `toml:"mode"`    // "atomic" or "workflow"
	Timeout Duration `toml:"timeout"` // default 30s
}

type Temporal struct {
	HostPort  string `toml:"host_port"`
	TaskQueue string `toml:"task_queue"`
}

type API struct {
	Bind string `toml:"bind"`
}

// Load reads and validates a tracker TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.StateDB == "" {
		cfg.General.StateDB = "~/.local/share/tracker/tracker.db"
	}

	if cfg.Sprint.DefaultLength.Duration == 0 {
		cfg.Sprint.DefaultLength.Duration = 14 * 24 * time.Hour
	}
	if len(cfg.Sprint.StoryPointScale) == 0 {
		cfg.Sprint.StoryPointScale = []int{1, 2, 3, 5, 8, 13, 21}
	}

	cfg.Batch.Mode = strings.ToLower(strings.TrimSpace(cfg.Batch.Mode))
	if cfg.Batch.Mode == "" {
		cfg.Batch.Mode = BatchAtomic
	}
	if cfg.Batch.Timeout.Duration == 0 {
		cfg.Batch.Timeout.Duration = 30 * time.Second
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "127.0.0.1:7233"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "tracker-task-queue"
	}

	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1:8900"
	}

	for name, project := range cfg.Projects {
		if project.Name == "" {
			project.Name = name
		}
		cfg.Projects[name] = project
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.General.LogLevel)
	}

	hasEnabled := false
	for _, p := range cfg.Projects {
		if p.Enabled {
			hasEnabled = true
			break
		}
	}
	if !hasEnabled {
		return fmt.Errorf("at least one project must be enabled")
	}

	if cfg.Sprint.DefaultLength.Duration < 24*time.Hour {
		return fmt.Errorf("sprint default_length %s must be at least one day", cfg.Sprint.DefaultLength.Duration)
	}
	prev := 0
	for _, p := range cfg.Sprint.StoryPointScale {
		if p <= prev {
			return fmt.Errorf("story_point_scale must be positive and strictly increasing, got %v", cfg.Sprint.StoryPointScale)
		}
		prev = p
	}

	switch cfg.Batch.Mode {
	case BatchAtomic, BatchWorkflow:
	default:
		return fmt.Errorf("unknown batch mode %q (want %q or %q)", cfg.Batch.Mode, BatchAtomic, BatchWorkflow)
	}
	if cfg.Batch.Timeout.Duration < 0 {
		return fmt.Errorf("batch timeout cannot be negative")
	}

	if cfg.General.StateDB != "" && cfg.General.StateDB != ":memory:" {
		dir := ExpandHome(filepath.Dir(cfg.General.StateDB))
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("state_db directory %q does not exist: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("state_db parent path %q is not a directory", dir)
		}
	}

	return nil
}

// ProjectEnabled reports whether name is a configured, enabled project.
func (c *Config) ProjectEnabled(name string) bool {
	p, ok := c.Projects[name]
	return ok && p.Enabled
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Projects != nil {
		out.Projects = make(map[string]Project, len(c.Projects))
		for name, p := range c.Projects {
			out.Projects[name] = p
		}
	}
	if c.Sprint.StoryPointScale != nil {
		out.Sprint.StoryPointScale = append([]int(nil), c.Sprint.StoryPointScale...)
	}
	return &out
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

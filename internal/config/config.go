// Package config handles configuration loading and management for Foreman.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Foreman.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
}

// EngineConfig holds scheduling settings.
type EngineConfig struct {
	// ConcurrencyLimit is the maximum number of simultaneously active tasks.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// TickInterval is the scheduling tick rate.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// PollInterval is the intervention poll rate.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// Threshold is the failure count inside the window that halts dispatch.
	Threshold int `mapstructure:"threshold"`
	// Window is the trailing duration over which failures are counted.
	Window time.Duration `mapstructure:"window"`
}

// CheckpointConfig holds checkpoint persistence settings.
type CheckpointConfig struct {
	// Interval is the minimum spacing between routine checkpoint writes.
	Interval time.Duration `mapstructure:"interval"`
}

// WorkspaceConfig holds workspace provisioning settings.
type WorkspaceConfig struct {
	// BaseDir is where worktrees are created. Empty uses the cache default.
	BaseDir string `mapstructure:"base_dir"`
}

// ExecutorConfig holds task execution settings.
type ExecutorConfig struct {
	// Command is the shell command run for each task in its workspace.
	Command string `mapstructure:"command"`
}

// TrackerConfig holds issue tracker settings.
type TrackerConfig struct {
	// Path is the SQLite database path. Empty uses .foreman/tracker.db in
	// the project directory.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_* prefixed)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("engine.concurrency_limit", cfg.Engine.ConcurrencyLimit)
	v.Set("engine.tick_interval", cfg.Engine.TickInterval.String())
	v.Set("engine.poll_interval", cfg.Engine.PollInterval.String())
	v.Set("breaker.threshold", cfg.Breaker.Threshold)
	v.Set("breaker.window", cfg.Breaker.Window.String())
	v.Set("checkpoint.interval", cfg.Checkpoint.Interval.String())
	v.Set("workspace.base_dir", cfg.Workspace.BaseDir)
	v.Set("executor.command", cfg.Executor.Command)
	v.Set("tracker.path", cfg.Tracker.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.ConcurrencyLimit < 1 {
		return fmt.Errorf("engine.concurrency_limit must be at least 1, got %d", c.Engine.ConcurrencyLimit)
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be at least 1, got %d", c.Breaker.Threshold)
	}
	if c.Breaker.Window <= 0 {
		return fmt.Errorf("breaker.window must be positive, got %s", c.Breaker.Window)
	}
	if c.Executor.Command == "" {
		return fmt.Errorf("executor.command must be set")
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.concurrency_limit", 3)
	v.SetDefault("engine.tick_interval", "1s")
	v.SetDefault("engine.poll_interval", "5s")

	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.window", "60s")

	v.SetDefault("checkpoint.interval", "30s")

	v.SetDefault("workspace.base_dir", "")
	v.SetDefault("executor.command", "")
	v.SetDefault("tracker.path", "")
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ConcurrencyLimit: 3,
			TickInterval:     time.Second,
			PollInterval:     5 * time.Second,
		},
		Breaker: BreakerConfig{
			Threshold: 3,
			Window:    60 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Interval: 30 * time.Second,
		},
	}
}

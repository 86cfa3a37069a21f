package main

import (
	"fmt"
	"os"

	"github.com/jharlow/foreman/internal/config"
	"github.com/jharlow/foreman/internal/tracker"
)

// projectRoot returns the directory foreman operates in.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// openTracker opens the project's tracker database, honoring a configured
// path override.
func openTracker(cfg *config.Config) (*tracker.SQLite, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	path := cfg.Tracker.Path
	if path == "" {
		path = tracker.DefaultDBPath(root)
	}
	trk, err := tracker.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open tracker: %w", err)
	}
	return trk, nil
}

// loadConfig loads configuration, falling back to defaults on a missing
// config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

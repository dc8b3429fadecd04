// Package config handles configuration loading for tend.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// DBPath is the SQLite database file. ":memory:" is accepted.
	DBPath string `yaml:"db_path"`
	// SnapshotPath is where JSONL snapshots are written.
	SnapshotPath string `yaml:"snapshot_path"`
	// AutoSnapshot exports a snapshot after every successful write.
	AutoSnapshot bool      `yaml:"auto_snapshot"`
	Log          LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stderr
}

// DefaultConfig returns a Config with sensible defaults under the user's
// home directory.
func DefaultConfig() Config {
	dataDir := ".tend"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".tend")
	}
	return Config{
		DBPath:       filepath.Join(dataDir, "tend.db"),
		SnapshotPath: filepath.Join(dataDir, "snapshot.jsonl"),
		AutoSnapshot: false,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path. If configPath is empty or
// the file doesn't exist, defaults are returned.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	return &cfg, nil
}

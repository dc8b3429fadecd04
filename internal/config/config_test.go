package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.SnapshotPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.AutoSnapshot)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Log.Level, cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tend.yml")
	content := `
db_path: /tmp/custom.db
auto_snapshot: true
log:
  level: debug
  file: /tmp/tend.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.True(t, cfg.AutoSnapshot)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/tend.log", cfg.Log.File)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, DefaultConfig().SnapshotPath, cfg.SnapshotPath)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

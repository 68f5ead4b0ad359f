package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.HeartbeatInterval)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60*time.Second, cfg.Room.HostGracePeriod)
	assert.Equal(t, 30*time.Second, cfg.Room.SnapshotInterval)
	assert.Equal(t, 30*time.Minute, cfg.Room.AbandonedTTL)
	assert.Equal(t, 5, cfg.Room.HandSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
  heartbeat_interval: 10s
room:
  host_grace_period: 45s
  hand_size: 7
logging:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.HeartbeatInterval)
	assert.Equal(t, 45*time.Second, cfg.Room.HostGracePeriod)
	assert.Equal(t, 7, cfg.Room.HandSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Room.SnapshotInterval)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TABLETOP_SERVER_ADDRESS", ":7070")
	t.Setenv("TABLETOP_ROOM_HAND_SIZE", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 9, cfg.Room.HandSize)
}

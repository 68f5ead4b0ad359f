package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Room     RoomConfig     `mapstructure:"room"`
}

// ServerConfig covers the HTTP listener that carries both the lifecycle API
// and the websocket live channel.
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DatabaseConfig configures the PostgreSQL pool used for snapshots and
// setups. An empty URL disables persistence entirely.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RoomConfig holds the room-engine timings and limits.
type RoomConfig struct {
	HostGracePeriod  time.Duration `mapstructure:"host_grace_period"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	AbandonedTTL     time.Duration `mapstructure:"abandoned_ttl"`
	HandSize         int           `mapstructure:"hand_size"`
}

// Load reads configuration from the given file, with TABLETOP_* environment
// variables overriding individual keys. A missing config file falls back to
// defaults so the server can run from env alone.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("room.host_grace_period", 60*time.Second)
	v.SetDefault("room.snapshot_interval", 30*time.Second)
	v.SetDefault("room.cleanup_interval", time.Minute)
	v.SetDefault("room.abandoned_ttl", 30*time.Minute)
	v.SetDefault("room.hand_size", 5)

	v.SetEnvPrefix("TABLETOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		// A missing file just means env/default operation; anything else
		// (unreadable, malformed) is a hard error.
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

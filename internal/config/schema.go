// Package config defines the configuration schema for chatbridge.
//
// JSON keys use camelCase. Files ending in .yaml or .yml are read as YAML
// with the same keys.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/chatbridge/internal/config/backend"
	"github.com/crystaldolphin/chatbridge/internal/config/bridge"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
)

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "text"}
}

// Config is the root configuration object, loaded from ~/.openresearch/bridge/config.json.
type Config struct {
	Backend  backend.BackendConfig  `json:"backend" yaml:"backend"`
	Bridge   bridge.BridgeConfig    `json:"bridge" yaml:"bridge"`
	Channels channel.ChannelsConfig `json:"channels" yaml:"channels"`
	Logging  LoggingConfig          `json:"logging" yaml:"logging"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Backend:  backend.DefaultBackendConfig(),
		Bridge:   bridge.DefaultBridgeConfig(),
		Channels: channel.DefaultChannelsConfig(),
		Logging:  defaultLoggingConfig(),
	}
}

// SessionDirPath returns the expanded absolute path of the session store directory.
func (c *Config) SessionDirPath() string {
	dir := c.Bridge.SessionDir
	if dir == "" {
		return DataDir()
	}
	return expandHome(dir)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	return p
}

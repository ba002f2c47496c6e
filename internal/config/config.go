// Package config resolves process configuration from CLI flags and
// environment variables, in that precedence order (flags win).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the runtime configuration shared by cmd/telemetryd and
// cmd/consumerd.
type Config struct {
	// DataDir is the root of on-disk state: {DataDir}/telemetry.db and
	// {DataDir}/logs/processing.log. Default: ~/.blueplane.
	DataDir string

	// RedisHost and RedisPort address the Redis Streams broker (C2).
	RedisHost string
	RedisPort string

	// LogLevel is one of debug|info|warn|error.
	LogLevel string

	// WorkspaceRoot holds the -workspace-root flag / WORKSPACE_ROOT
	// value. No component reads it: the Cursor monitor (C4) polls
	// every workspace that has an active session in the registry.
	WorkspaceRoot string
}

// Default returns a Config populated with the documented defaults,
// before flags or environment variables are applied.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir:   filepath.Join(home, ".blueplane"),
		RedisHost: "127.0.0.1",
		RedisPort: "6379",
		LogLevel:  "info",
	}
}

// Load builds a Config from defaults, then environment variables, then
// flags registered on fs, in that order of increasing precedence. fs
// must not have been parsed yet; Load parses args itself.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()
	cfg.applyEnv()

	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "root directory for telemetry.db and logs (env BLUEPLANE_DATA_DIR)")
	fs.StringVar(&cfg.RedisHost, "redis-host", cfg.RedisHost, "Redis host (env REDIS_HOST)")
	fs.StringVar(&cfg.RedisPort, "redis-port", cfg.RedisPort, "Redis port (env REDIS_PORT)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error (env LOG_LEVEL)")
	fs.StringVar(&cfg.WorkspaceRoot, "workspace-root", cfg.WorkspaceRoot, "workspace root path, parsed but not used by any component (env WORKSPACE_ROOT)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BLUEPLANE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.RedisPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
}

// Validate reports a ConfigError-shaped problem with the resolved
// configuration. Validation failures are fatal at startup (spec §6,
// exit code 2).
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("redis-host must not be empty")
	}
	if c.RedisPort == "" {
		return fmt.Errorf("redis-port must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	return nil
}

// RedisAddr returns the host:port address for the Redis client.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// DBPath returns the path to the unified SQLite store.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "telemetry.db")
}

// LogPath returns the path to the processing log file.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "processing.log")
}

// EnsureDataDir creates DataDir and its logs/ subdirectory if missing.
func (c Config) EnsureDataDir() error {
	if err := os.MkdirAll(filepath.Join(c.DataDir, "logs"), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

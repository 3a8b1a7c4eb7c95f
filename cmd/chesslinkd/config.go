package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the relay daemon configuration, loaded from a TOML file.
type Config struct {
	// Addr is the TCP listen address, e.g. "127.0.0.1:6000" or ":6000".
	Addr string `toml:"addr"`
	// BufferSize is the per-connection queue capacity for relayed moves.
	BufferSize int `toml:"buffer_size"`
	// ShutdownGraceSeconds is how long matches in progress get to finish
	// after a shutdown signal before the listener closes.
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Addr:       ":6000",
		BufferSize: 16,
		LogLevel:   "info",
	}
}

// loadConfig reads the TOML file at path, filling unset fields with
// defaults. An empty path yields the defaults unchanged.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config load failed (%s)", path)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config missing addr")
	}
	if c.BufferSize <= 0 {
		return errors.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.ShutdownGraceSeconds < 0 {
		return errors.Errorf("shutdown_grace_seconds must not be negative, got %d", c.ShutdownGraceSeconds)
	}
	if _, err := c.slogLevel(); err != nil {
		return err
	}
	return nil
}

func (c Config) slogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Errorf("unknown log_level %q", c.LogLevel)
	}
}

func (c Config) shutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

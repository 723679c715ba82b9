// Package config provides the configuration schema and loading for the
// intentgate CLI. The firewall core itself is configured by its host; this
// schema covers the standalone surface: rule directories, audit output,
// logging, and metrics.
package config

import (
	"log/slog"
	"strings"
)

// DefaultWritableDir is the watched rules directory: the host's
// data-system directory, sub-path ifw/.
const DefaultWritableDir = "/data/system/ifw"

// DefaultReadOnlyDirs are read once at boot, in this order. They are not
// watched; changes there require a restart.
var DefaultReadOnlyDirs = []string{
	"/system/etc/ifw.d/",
	"/system_ext/etc/ifw.d/",
	"/product/etc/ifw.d/",
	"/odm/etc/ifw.d/",
	"/vendor/etc/ifw.d/",
}

// Config is the top-level intentgate configuration.
type Config struct {
	// Rules configures where rule files are read from.
	Rules RulesConfig `yaml:"rules" mapstructure:"rules"`

	// Audit configures the audit event log.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Log configures logging.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Metrics configures the Prometheus endpoint of the watch command.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Trace enables stdout trace export for reload spans.
	Trace bool `yaml:"trace" mapstructure:"trace"`
}

// RulesConfig locates the rule directories.
type RulesConfig struct {
	// Dir is the writable, watched rules directory. Created on startup
	// if missing.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`
	// SystemDirs are the ordered read-only directories read at startup.
	SystemDirs []string `yaml:"system_dirs" mapstructure:"system_dirs"`
}

// AuditConfig configures the file-based audit sink.
type AuditConfig struct {
	// Enabled turns audit persistence on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Dir is where audit files are written.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required_if=Enabled true"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// MetricsConfig configures the metrics listener.
type MetricsConfig struct {
	// Addr is the host:port the watch command serves /metrics on.
	// Empty disables the listener.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Rules.Dir == "" {
		c.Rules.Dir = DefaultWritableDir
	}
	if c.Rules.SystemDirs == nil {
		c.Rules.SystemDirs = append([]string(nil), DefaultReadOnlyDirs...)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// SlogLevel maps the configured level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

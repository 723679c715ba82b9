// Package config provides configuration loading for intentgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for intentgate.yaml/.yml
// in the standard locations. The search requires an explicit YAML
// extension so the binary itself (same base name, no extension) is never
// matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file anywhere; let ReadInConfig return
		// ConfigFileNotFoundError, which callers handle gracefully.
		viper.SetConfigName("intentgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: INTENTGATE_RULES_DIR etc.
	viper.SetEnvPrefix("INTENTGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches the standard locations for an intentgate config
// file with an explicit .yaml or .yml extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".intentgate"),
		"/etc/intentgate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "intentgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment overrides.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("rules.dir")
	// Note: rules.system_dirs is an array; use the config file for it.
	_ = viper.BindEnv("audit.enabled")
	_ = viper.BindEnv("audit.dir")
	_ = viper.BindEnv("log.level")
	_ = viper.BindEnv("metrics.addr")
	_ = viper.BindEnv("trace")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; run on env vars and defaults alone.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when only env vars and defaults were used.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

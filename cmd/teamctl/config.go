// Package main implements teamctl, a small daemon that demonstrates
// libteam: it watches one or more team devices, logs their port and option
// changes, and reconnects with backoff if the team device disappears and
// comes back (e.g. across a module reload).
package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is teamctl's top-level configuration structure.
type Config struct {
	// Interfaces is the list of team device names to watch (e.g. "team0").
	// At least one is required.
	Interfaces []string `yaml:"interfaces"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// ReconnectMaxElapsed bounds how long teamctl keeps retrying Init for a
	// single interface before giving up on it, as a Go duration string
	// (e.g. "5m"). Defaults to "0" (retry forever) when omitted.
	ReconnectMaxElapsed string `yaml:"reconnect_max_elapsed"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReconnectMaxElapsed == "" {
		cfg.ReconnectMaxElapsed = "0"
	}
}

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Interfaces) == 0 {
		errs = append(errs, errors.New("interfaces: at least one interface name is required"))
	}
	for i, name := range cfg.Interfaces {
		if name == "" {
			errs = append(errs, fmt.Errorf("interfaces[%d]: empty interface name", i))
		}
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}

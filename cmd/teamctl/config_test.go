package main

import (
	"os"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
interfaces:
  - team0
  - team1
log_level: debug
reconnect_max_elapsed: 5m
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Interfaces) != 2 || cfg.Interfaces[0] != "team0" {
		t.Errorf("Interfaces = %v", cfg.Interfaces)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ReconnectMaxElapsed != "5m" {
		t.Errorf("ReconnectMaxElapsed = %q, want 5m", cfg.ReconnectMaxElapsed)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeTemp(t, "interfaces: [team0]\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
	}
	if cfg.ReconnectMaxElapsed != "0" {
		t.Errorf("ReconnectMaxElapsed = %q, want default 0", cfg.ReconnectMaxElapsed)
	}
}

func TestLoadConfig_MissingInterfaces(t *testing.T) {
	path := writeTemp(t, "log_level: info\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "interfaces") {
		t.Fatalf("err = %v, want interfaces validation error", err)
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	path := writeTemp(t, "interfaces: [team0]\nlog_level: verbose\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("err = %v, want log_level validation error", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/teamctl.yaml")
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

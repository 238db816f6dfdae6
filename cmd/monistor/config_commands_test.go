package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"monistor/internal/testsupport"
)

func TestConfigInitShowValidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Supervised binary: monistord")

	out, _, err = runCLI(t, []string{"config", "show"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[daemon]")
	requireContains(t, out, cfg.Paths.StateDir)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, cfg.SocketPath(), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, cfg.SocketPath(), "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, cfg.SocketPath(), ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestSocketFlagOverridesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	override := filepath.Join(t.TempDir(), "other.sock")
	out, _, err := runCLI(t, []string{"config", "show"}, override, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, override)
}

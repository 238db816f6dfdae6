package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"monistor/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "monistor", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "monistor")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.SocketPath() != filepath.Join(wantState, "monistor.sock") {
		t.Fatalf("unexpected socket path %q", cfg.SocketPath())
	}
	if cfg.LockPath() != filepath.Join(wantState, "monistor.lock") {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.Daemon.Binary != "monistord" {
		t.Fatalf("unexpected binary %q", cfg.Daemon.Binary)
	}
	if cfg.Daemon.RestartDelay() != 2*time.Second {
		t.Fatalf("unexpected restart delay %s", cfg.Daemon.RestartDelay())
	}
	if cfg.Daemon.AttemptWindow() != time.Minute || cfg.Daemon.MaxAttempts != 3 {
		t.Fatalf("unexpected attempt policy %d within %s", cfg.Daemon.MaxAttempts, cfg.Daemon.AttemptWindow())
	}
	if cfg.Watchdog.CheckDelay() != 200*time.Millisecond || cfg.Watchdog.TrustWindow() != time.Second {
		t.Fatalf("unexpected watchdog timing %s/%s", cfg.Watchdog.CheckDelay(), cfg.Watchdog.TrustWindow())
	}
	if cfg.Daemon.DrainStderr {
		t.Fatal("expected stderr drain disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(wantState); err != nil || !info.IsDir() {
		t.Fatalf("expected state directory to exist: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "monistor.toml")

	type payload struct {
		Paths struct {
			StateDir   string `toml:"state_dir"`
			SocketPath string `toml:"socket_path"`
		} `toml:"paths"`
		Daemon struct {
			Binary         string   `toml:"binary"`
			Args           []string `toml:"args"`
			RestartDelayMS int      `toml:"restart_delay_ms"`
		} `toml:"daemon"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Paths.SocketPath = filepath.Join(tempDir, "run", "ctl.sock")
	custom.Daemon.Binary = "  /opt/monistord  "
	custom.Daemon.Args = []string{"--verbose", " "}
	custom.Daemon.RestartDelayMS = 500
	custom.Logging.Format = "JSON"
	custom.Logging.Level = "Raw"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Daemon.Binary != "/opt/monistord" {
		t.Fatalf("expected trimmed binary, got %q", cfg.Daemon.Binary)
	}
	if len(cfg.Daemon.Args) != 1 || cfg.Daemon.Args[0] != "--verbose" {
		t.Fatalf("unexpected args %v", cfg.Daemon.Args)
	}
	if cfg.Daemon.RestartDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected restart delay %s", cfg.Daemon.RestartDelay())
	}
	if cfg.Daemon.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts to survive partial file, got %d", cfg.Daemon.MaxAttempts)
	}
	if cfg.SocketPath() != custom.Paths.SocketPath {
		t.Fatalf("expected explicit socket path, got %q", cfg.SocketPath())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "raw" {
		t.Fatalf("expected lowercased logging settings, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "run")); err != nil {
		t.Fatalf("expected socket directory to exist: %v", err)
	}
}

func TestEnvVarOverridesDaemonBinary(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.DaemonBinaryEnv, "/usr/local/bin/monistord-dev")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Daemon.Binary != "/usr/local/bin/monistord-dev" {
		t.Fatalf("expected binary from env, got %q", cfg.Daemon.Binary)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[daemon\nbinary = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	def := config.Default()
	if cfg.Daemon.Binary != def.Daemon.Binary || cfg.Daemon.RestartDelayMS != def.Daemon.RestartDelayMS {
		t.Fatalf("sample daemon section drifted from defaults: %+v", cfg.Daemon)
	}
	if cfg.Watchdog != def.Watchdog {
		t.Fatalf("sample watchdog section drifted from defaults: %+v", cfg.Watchdog)
	}
	if cfg.Notifications != def.Notifications {
		t.Fatalf("sample notifications section drifted from defaults: %+v", cfg.Notifications)
	}
	if !strings.Contains(cfg.Paths.StateDir, "monistor") {
		t.Fatalf("expected state dir to contain monistor, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty binary", func(c *config.Config) { c.Daemon.Binary = "" }, "daemon.binary"},
		{"negative restart", func(c *config.Config) { c.Daemon.RestartDelayMS = -1 }, "daemon.restart_delay_ms"},
		{"zero attempts", func(c *config.Config) { c.Daemon.MaxAttempts = 0 }, "daemon.max_attempts"},
		{"zero window", func(c *config.Config) { c.Daemon.AttemptWindowMS = 0 }, "daemon.attempt_window_ms"},
		{"zero trust", func(c *config.Config) { c.Watchdog.TrustWindowMS = 0 }, "watchdog.trust_window_ms"},
		{"negative keep", func(c *config.Config) { c.History.Keep = -5 }, "history.keep"},
		{"bad topic", func(c *config.Config) { c.Notifications.NtfyTopic = "ntfy.sh/topic" }, "notifications.ntfy_topic"},
		{"negative ntfy timeout", func(c *config.Config) { c.Notifications.RequestTimeoutS = -1 }, "notifications.request_timeout_s"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEncodeRoundTripsSections(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.Args = []string{"--once"}
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), "[watchdog]") || !strings.Contains(string(data), "--once") {
		t.Fatalf("unexpected encoded config:\n%s", data)
	}
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state directory and control socket configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	SocketPath string `toml:"socket_path"`
}

// Daemon contains configuration for the supervised companion process.
type Daemon struct {
	Binary          string   `toml:"binary"`
	Args            []string `toml:"args"`
	StartupDelayMS  int      `toml:"startup_delay_ms"`
	RestartDelayMS  int      `toml:"restart_delay_ms"`
	MaxAttempts     int      `toml:"max_attempts"`
	AttemptWindowMS int      `toml:"attempt_window_ms"`
	DrainStderr     bool     `toml:"drain_stderr"`
	AutoEnable      bool     `toml:"auto_enable"`
}

// Watchdog contains timing for the modal correlator.
type Watchdog struct {
	CheckDelayMS  int `toml:"check_delay_ms"`
	TrustWindowMS int `toml:"trust_window_ms"`
}

// Hotplug toggles the udev DRM monitor.
type Hotplug struct {
	Enabled bool `toml:"enabled"`
}

// History contains configuration for the event history store.
type History struct {
	Enabled bool `toml:"enabled"`
	Keep    int  `toml:"keep"`
}

// Notifications contains ntfy alert configuration. An empty topic disables
// alerts.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeoutS int    `toml:"request_timeout_s"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for monistor.
//
// Configuration sections by subsystem:
//   - Paths: state directory and control socket
//   - Daemon: companion binary and restart policy
//   - Watchdog: modal check delay and trust window
//   - Hotplug: udev DRM monitoring
//   - History: sqlite event log retention
//   - Notifications: ntfy alerts when the companion gives up
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Daemon        Daemon        `toml:"daemon"`
	Watchdog      Watchdog      `toml:"watchdog"`
	Hotplug       Hotplug       `toml:"hotplug"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("monistor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, filepath.Dir(c.SocketPath())}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath is the daemon log file inside the state directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "monistor.log")
}

// SocketPath is the JSON-RPC control socket. It falls back to the state
// directory when paths.socket_path is unset.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Paths.SocketPath) != "" {
		return c.Paths.SocketPath
	}
	return filepath.Join(c.Paths.StateDir, "monistor.sock")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "monistor.lock")
}

// PIDPath is where the running daemon publishes its process ID.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "monistor.pid")
}

// HistoryPath is the sqlite event history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// StartupDelay is the pause between enabling and the first spawn.
func (d Daemon) StartupDelay() time.Duration { return millis(d.StartupDelayMS) }

// RestartDelay is the pause between a failed exit and the next spawn.
func (d Daemon) RestartDelay() time.Duration { return millis(d.RestartDelayMS) }

// AttemptWindow is the span the spawn attempt limit is measured over.
func (d Daemon) AttemptWindow() time.Duration { return millis(d.AttemptWindowMS) }

// CheckDelay is how long the watchdog waits before judging a modal.
func (w Watchdog) CheckDelay() time.Duration { return millis(w.CheckDelayMS) }

// TrustWindow is how long a confirmed display change vouches for modals.
func (w Watchdog) TrustWindow() time.Duration { return millis(w.TrustWindowMS) }

// RequestTimeout bounds a single ntfy request.
func (n Notifications) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutS) * time.Second
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	validLogFormats = []string{"console", "json"}
	validLogLevels  = []string{"raw", "trace", "debug", "info", "warn", "warning", "error"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateWatchdog(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDaemon() error {
	if c.Daemon.Binary == "" {
		return errors.New("daemon.binary must be set")
	}
	if c.Daemon.StartupDelayMS < 0 {
		return errors.New("daemon.startup_delay_ms must be non-negative")
	}
	if c.Daemon.RestartDelayMS < 0 {
		return errors.New("daemon.restart_delay_ms must be non-negative")
	}
	if c.Daemon.MaxAttempts < 1 {
		return errors.New("daemon.max_attempts must be at least 1")
	}
	if c.Daemon.AttemptWindowMS <= 0 {
		return errors.New("daemon.attempt_window_ms must be positive")
	}
	return nil
}

func (c *Config) validateWatchdog() error {
	if c.Watchdog.CheckDelayMS < 0 {
		return errors.New("watchdog.check_delay_ms must be non-negative")
	}
	if c.Watchdog.TrustWindowMS <= 0 {
		return errors.New("watchdog.trust_window_ms must be positive")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Keep < 0 {
		return errors.New("history.keep must be non-negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeoutS < 0 {
		return errors.New("notifications.request_timeout_s must be non-negative")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %v, got %q", validLogFormats, c.Logging.Format)
	}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %v, got %q", validLogLevels, c.Logging.Level)
	}
	return nil
}

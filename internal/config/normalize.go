package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(strings.TrimSpace(c.Paths.SocketPath)); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	if value, ok := os.LookupEnv(DaemonBinaryEnv); ok && strings.TrimSpace(value) != "" {
		c.Daemon.Binary = value
	}
	c.Daemon.Binary = strings.TrimSpace(c.Daemon.Binary)
	if c.Daemon.Binary == "" {
		c.Daemon.Binary = defaultDaemonBinary
	}
	args := c.Daemon.Args[:0]
	for _, arg := range c.Daemon.Args {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		args = append(args, arg)
	}
	c.Daemon.Args = args
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutS == 0 {
		c.Notifications.RequestTimeoutS = defaultNtfyTimeoutS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

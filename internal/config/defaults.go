package config

const (
	defaultConfigPath      = "~/.config/monistor/config.toml"
	defaultStateDir        = "~/.local/share/monistor"
	defaultDaemonBinary    = "monistord"
	defaultStartupDelayMS  = 200
	defaultRestartDelayMS  = 2000
	defaultMaxAttempts     = 3
	defaultAttemptWindowMS = 60000
	defaultCheckDelayMS    = 200
	defaultTrustWindowMS   = 1000
	defaultHistoryKeep     = 500
	defaultNtfyTimeoutS    = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	// DaemonBinaryEnv overrides daemon.binary when set.
	DaemonBinaryEnv = "MONISTOR_DAEMON_BINARY"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Daemon: Daemon{
			Binary:          defaultDaemonBinary,
			StartupDelayMS:  defaultStartupDelayMS,
			RestartDelayMS:  defaultRestartDelayMS,
			MaxAttempts:     defaultMaxAttempts,
			AttemptWindowMS: defaultAttemptWindowMS,
			AutoEnable:      true,
		},
		Watchdog: Watchdog{
			CheckDelayMS:  defaultCheckDelayMS,
			TrustWindowMS: defaultTrustWindowMS,
		},
		Hotplug: Hotplug{
			Enabled: true,
		},
		History: History{
			Enabled: true,
			Keep:    defaultHistoryKeep,
		},
		Notifications: Notifications{
			RequestTimeoutS: defaultNtfyTimeoutS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// Package daemonrun hosts the foreground daemon process: logger, session,
// pid file, history store, daemon, and IPC server, torn down in reverse on
// signal or on an IPC shutdown request.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"monistor/internal/config"
	"monistor/internal/daemon"
	"monistor/internal/deps"
	"monistor/internal/history"
	"monistor/internal/ipc"
	"monistor/internal/logging"
	"monistor/internal/supervisor"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel    string
	Development bool
	// Spawner replaces the exec spawner in tests.
	Spawner supervisor.Spawner
}

// Run starts the monistor daemon and blocks until SIGINT, SIGTERM, cmdCtx
// cancellation, or an IPC Shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	sessionID := uuid.NewString()
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldSessionID, sessionID))

	logDependencySnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Warn("history store unavailable",
				logging.Error(err),
				logging.String(logging.FieldEventType, "history_open_failed"),
				logging.String(logging.FieldErrorHint, "remove or repair "+cfg.HistoryPath()),
				logging.String(logging.FieldImpact, "events will not be recorded"),
			)
			store = nil
		}
	}

	d, err := daemon.New(cfg, logger, daemon.Options{
		Session: sessionID,
		Spawner: opts.Spawner,
		History: store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, shutdown := context.WithCancel(signalCtx)
	defer shutdown()

	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger, shutdown)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-runCtx.Done()
	logger.Info("monistor daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	companion := deps.CheckBinaries([]deps.Requirement{deps.Companion(cfg)})[0]
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("daemon_binary", companion.Command),
		logging.Bool("daemon_available", companion.Available),
		logging.String("daemon_path", companion.Path),
		logging.Bool("auto_enable", cfg.Daemon.AutoEnable),
		logging.Bool("hotplug_enabled", cfg.Hotplug.Enabled),
		logging.Bool("history_enabled", cfg.History.Enabled),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
	)
	if !companion.Available {
		logging.WarnWithContext(logger, "companion daemon not found on PATH", "daemon_binary_missing",
			logging.String("daemon_binary", companion.Command),
			logging.String(logging.FieldErrorHint, "install "+companion.Command+" or set daemon.binary"),
			logging.String(logging.FieldImpact, "supervision will fail on first spawn"),
		)
	}
}

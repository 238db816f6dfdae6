package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"monistor/internal/bridge"
	"monistor/internal/config"
	"monistor/internal/eventloop"
	"monistor/internal/extension"
	"monistor/internal/history"
	"monistor/internal/logging"
	"monistor/internal/notifications"
	"monistor/internal/supervisor"
	"monistor/internal/watchdog"
)

// ErrNotRunning is returned by operations that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// ErrHistoryDisabled is returned by History when no store is configured.
var ErrHistoryDisabled = errors.New("history disabled")

// ErrNotificationsDisabled is returned by TestNotification without a topic.
var ErrNotificationsDisabled = errors.New("notifications disabled; set notifications.ntfy_topic")

const (
	stopTimeout    = 2 * time.Second
	historyTimeout = 5 * time.Second
	alertTimeout   = 15 * time.Second
)

// Options carries collaborators that are swapped out in tests.
type Options struct {
	// Session is stamped on every history entry.
	Session string
	// Spawner defaults to supervisor.ExecSpawner.
	Spawner supervisor.Spawner
	// History may be nil; recording is then disabled.
	History *history.Store
	// Notifier defaults to notifications.NewService(cfg).
	Notifier notifications.Service
}

// Daemon owns the event loop, the shell bridge, and the extension, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	session  string
	spawner  supervisor.Spawner
	store    *history.Store
	notifier notifications.Service
	alerts   sync.WaitGroup

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	loop      *eventloop.Loop
	bridge    *bridge.Bridge
	ext       *extension.Extension
	recorder  *history.Recorder
	hotplug   *hotplugMonitor
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Session      string
	StartedAt    time.Time
	LockFilePath string
	HistoryPath  string
	Extension    extension.Status
	Bridge       bridge.Stats
	Hotplug      HotplugStatus
	HistoryCount uint64
	HistoryDrops uint64
}

// New constructs a daemon. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = supervisor.ExecSpawner{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		session:  opts.Session,
		spawner:  spawner,
		store:    opts.History,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the event loop and the hotplug
// monitor, and enables supervision when daemon.auto_enable is set.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another monistor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	var recorder *history.Recorder
	if d.store != nil {
		recorder = history.NewRecorder(d.store, d.logger, history.RecorderOptions{
			Keep:    d.cfg.History.Keep,
			Session: d.session,
		})
	}

	loop := eventloop.New(d.logger)
	shell := bridge.New(loop, d.logger)
	ext := extension.New(loop, shell, shell, d.spawner, d.logger, d.extensionOptions(), d.observers(recorder))
	go func() { _ = loop.Run(d.ctx) }()

	hotplug := newHotplugMonitor(d.cfg, d.logger, recorder)
	if err := hotplug.Start(d.ctx); err != nil {
		d.cancel()
		<-loop.Done()
		recorder.Close()
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start hotplug monitor: %w", err)
	}

	d.mu.Lock()
	d.loop = loop
	d.bridge = shell
	d.ext = ext
	d.recorder = recorder
	d.hotplug = hotplug
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.running.Store(true)
	recorder.Record(history.Entry{Source: history.SourceDaemon, Kind: "started", PID: os.Getpid()})
	d.logger.Info("monistor daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldSessionID, d.session),
	)

	if d.cfg.Daemon.AutoEnable {
		if err := d.Enable(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "auto enable failed", "auto_enable_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run monistor enable once the shell glue is connected"),
			)
		}
	}
	return nil
}

// Stop disables the extension, which kills the companion, stops the loop,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	loop, ext, recorder, hotplug := d.loop, d.ext, d.recorder, d.hotplug
	d.mu.Unlock()

	callCtx, cancelCall := context.WithTimeout(context.Background(), stopTimeout)
	if err := loop.Call(callCtx, func() { _ = ext.Disable() }); err != nil {
		logging.WarnWithContext(d.logger, "disable on stop failed", "daemon_stop_disable_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "companion process may outlive the daemon"),
		)
	}
	cancelCall()

	hotplug.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-loop.Done()

	recorder.Record(history.Entry{Source: history.SourceDaemon, Kind: "stopped", PID: os.Getpid()})
	recorder.Close()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("monistor daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.alerts.Wait()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Enable starts an activation cycle on the loop.
func (d *Daemon) Enable(ctx context.Context) error {
	return d.onLoop(ctx, func(ext *extension.Extension) error { return ext.Enable() })
}

// Disable ends the activation cycle on the loop.
func (d *Daemon) Disable(ctx context.Context) error {
	return d.onLoop(ctx, func(ext *extension.Extension) error { return ext.Disable() })
}

// Notify forwards a shell notification to the bridge.
func (d *Daemon) Notify(kind string, stack []string) error {
	shell := d.Bridge()
	if shell == nil {
		return ErrNotRunning
	}
	return shell.Notify(kind, stack)
}

// NextCommand long-polls the bridge for the next shell instruction.
func (d *Daemon) NextCommand(ctx context.Context, wait time.Duration) (bridge.Command, bool, error) {
	shell := d.Bridge()
	if shell == nil {
		return bridge.Command{}, false, ErrNotRunning
	}
	cmd, ok := shell.NextCommand(ctx, wait)
	return cmd, ok, nil
}

// History returns the most recent entries, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if d.store == nil {
		return nil, ErrHistoryDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	return d.store.Recent(ctx, limit)
}

// TestNotification publishes a test alert synchronously.
func (d *Daemon) TestNotification(ctx context.Context) error {
	if !d.notifier.Enabled() {
		return ErrNotificationsDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	return d.notifier.Publish(ctx, notifications.EventTest, nil)
}

// Bridge returns the shell bridge of the current run, or nil when stopped.
func (d *Daemon) Bridge() *bridge.Bridge {
	if !d.running.Load() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bridge
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// LockPath returns the single-instance lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status. Loop-owned state is read on the
// loop; when the loop cannot be reached only the static fields are filled.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Session:      d.session,
		LockFilePath: d.lockPath,
	}
	if d.store != nil {
		st.HistoryPath = d.store.Path()
	}
	if !st.Running {
		return st
	}

	d.mu.Lock()
	loop, shell, ext, recorder, hotplug := d.loop, d.bridge, d.ext, d.recorder, d.hotplug
	st.StartedAt = d.startedAt
	d.mu.Unlock()

	if err := loop.Call(ctx, func() { st.Extension = ext.Status() }); err != nil {
		d.logger.Debug("status read skipped", logging.Error(err))
	}
	st.Bridge = shell.Stats()
	st.Hotplug = hotplug.Status()
	st.HistoryCount = recorder.Written()
	st.HistoryDrops = recorder.Dropped()
	return st
}

func (d *Daemon) onLoop(ctx context.Context, fn func(*extension.Extension) error) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	d.mu.Lock()
	loop, ext := d.loop, d.ext
	d.mu.Unlock()

	var opErr error
	if err := loop.Call(ctx, func() { opErr = fn(ext) }); err != nil {
		if errors.Is(err, eventloop.ErrStopped) {
			return ErrNotRunning
		}
		return err
	}
	return opErr
}

func (d *Daemon) extensionOptions() extension.Options {
	dc := d.cfg.Daemon
	return extension.Options{
		StartupDelay: dc.StartupDelay(),
		Supervisor: supervisor.Options{
			Binary:        dc.Binary,
			Args:          dc.Args,
			RestartDelay:  dc.RestartDelay(),
			MaxAttempts:   dc.MaxAttempts,
			AttemptWindow: dc.AttemptWindow(),
			DrainStderr:   dc.DrainStderr,
		},
		Watchdog: watchdog.Options{
			CheckDelay:  d.cfg.Watchdog.CheckDelay(),
			TrustWindow: d.cfg.Watchdog.TrustWindow(),
		},
	}
}

// observers translate component events into history entries and alerts.
// They run on the loop; Record never blocks and alerts are sent from their
// own goroutine.
func (d *Daemon) observers(recorder *history.Recorder) extension.Observers {
	var lastExit string
	return extension.Observers{
		Supervisor: func(ev supervisor.Event) {
			recorder.Record(history.Entry{
				At:     ev.At,
				Source: history.SourceSupervisor,
				Kind:   string(ev.Kind),
				PID:    ev.PID,
				Detail: ev.Detail(),
			})
			switch ev.Kind {
			case supervisor.EventExitedFailure:
				lastExit = ev.Detail()
			case supervisor.EventHalted:
				d.alert(notifications.EventCompanionHalted, notifications.Payload{
					"binary":    d.cfg.Daemon.Binary,
					"attempts":  d.cfg.Daemon.MaxAttempts,
					"last_exit": lastExit,
				})
			case supervisor.EventSpawnFailed:
				d.alert(notifications.EventSpawnFailed, notifications.Payload{
					"binary": d.cfg.Daemon.Binary,
					"error":  ev.Detail(),
				})
			}
		},
		Watchdog: func(ev watchdog.Event) {
			detail := ev.Modal
			if ev.Err != nil {
				detail = ev.Err.Error()
			}
			recorder.Record(history.Entry{
				At:     ev.At,
				Source: history.SourceWatchdog,
				Kind:   string(ev.Kind),
				Detail: detail,
			})
		},
	}
}

func (d *Daemon) alert(event notifications.Event, payload notifications.Payload) {
	if !d.notifier.Enabled() {
		return
	}
	d.alerts.Add(1)
	go func() {
		defer d.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := d.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(d.logger, "alert delivery failed", "notification_failed",
				logging.Error(err),
				logging.String("alert", string(event)),
				logging.String(logging.FieldImpact, "supervision outcome was only logged"),
			)
		}
	}()
}

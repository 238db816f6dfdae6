// Package extension is the lifecycle boundary between the host shell and the
// two state machines. Enable subscribes the watchdog and, after a short
// startup delay, starts supervising the companion daemon. Disable undoes all
// of it in one step.
package extension

import (
	"fmt"
	"log/slog"
	"time"

	"monistor/internal/eventloop"
	"monistor/internal/host"
	"monistor/internal/logging"
	"monistor/internal/supervisor"
	"monistor/internal/watchdog"
)

const defaultStartupDelay = 200 * time.Millisecond

// Options configures one activation cycle.
type Options struct {
	// StartupDelay postpones the first spawn so the session bus is up
	// before the daemon connects to it.
	StartupDelay time.Duration
	Supervisor   supervisor.Options
	Watchdog     watchdog.Options
}

// Observers receive component events. Either may be nil.
type Observers struct {
	Supervisor supervisor.Observer
	Watchdog   watchdog.Observer
}

// Status describes the current activation cycle.
type Status struct {
	Enabled        bool
	Cycles         int
	StartupPending bool
	Subscriptions  int
	Supervisor     *supervisor.Snapshot
	Watchdog       *watchdog.Stats
}

// Extension owns the registry, watchdog, and supervisor for one activation
// cycle at a time. Every method must run on the event loop.
type Extension struct {
	sched     eventloop.Scheduler
	source    host.Source
	shell     host.Shell
	spawner   supervisor.Spawner
	logger    *slog.Logger
	opts      Options
	observers Observers

	enabled  bool
	cycles   int
	registry *host.Registry
	dog      *watchdog.Watchdog
	sup      *supervisor.Supervisor
	startup  eventloop.Timer
}

func New(sched eventloop.Scheduler, source host.Source, shell host.Shell, spawner supervisor.Spawner, logger *slog.Logger, opts Options, observers Observers) *Extension {
	if opts.StartupDelay < 0 {
		opts.StartupDelay = defaultStartupDelay
	}
	return &Extension{
		sched:     sched,
		source:    source,
		shell:     shell,
		spawner:   spawner,
		logger:    logger,
		opts:      opts,
		observers: observers,
	}
}

// Enable begins an activation cycle. It is a no-op while already enabled.
func (e *Extension) Enable() error {
	if e.enabled {
		return nil
	}

	registry := host.NewRegistry()
	dog := watchdog.New(e.sched, e.shell, e.logger, e.opts.Watchdog, e.observers.Watchdog)
	if err := dog.Attach(registry, e.source); err != nil {
		dog.Close()
		if releaseErr := registry.ReleaseAll(); releaseErr != nil {
			logging.WarnWithContext(e.component(), "partial subscription release failed", "subscription_release_failed",
				logging.Error(releaseErr),
			)
		}
		return fmt.Errorf("attach watchdog: %w", err)
	}

	e.enabled = true
	e.cycles++
	e.registry = registry
	e.dog = dog
	e.sup = nil

	cycle := e.cycles
	e.startup = e.sched.AfterFunc(e.opts.StartupDelay, func() {
		if !e.enabled || e.cycles != cycle {
			return
		}
		e.startup = nil
		e.sup = supervisor.New(e.sched, e.spawner, e.logger, e.opts.Supervisor, e.observers.Supervisor)
		e.sup.Start()
	})

	e.component().Info("extension enabled",
		logging.Int("cycle", cycle),
		logging.Duration("startup_delay", e.opts.StartupDelay),
	)
	return nil
}

// Disable ends the activation cycle: every subscription is released in one
// call, pending checks and the startup timer are cancelled, and the daemon is
// killed. It is a no-op while disabled.
func (e *Extension) Disable() error {
	if !e.enabled {
		return nil
	}
	e.enabled = false

	err := e.registry.ReleaseAll()
	e.dog.Close()
	if e.startup != nil {
		e.startup.Stop()
		e.startup = nil
	}
	if e.sup != nil {
		e.sup.Stop()
	}

	e.component().Info("extension disabled", logging.Int("cycle", e.cycles))
	if err != nil {
		return fmt.Errorf("release subscriptions: %w", err)
	}
	return nil
}

// Status reports the current or most recent cycle.
func (e *Extension) Status() Status {
	st := Status{
		Enabled:        e.enabled,
		Cycles:         e.cycles,
		StartupPending: e.startup != nil,
	}
	if e.registry != nil {
		st.Subscriptions = e.registry.Len()
	}
	if e.sup != nil {
		snap := e.sup.Snapshot()
		st.Supervisor = &snap
	}
	if e.dog != nil {
		stats := e.dog.Stats()
		st.Watchdog = &stats
	}
	return st
}

func (e *Extension) component() *slog.Logger {
	return logging.NewComponentLogger(e.logger, "extension")
}

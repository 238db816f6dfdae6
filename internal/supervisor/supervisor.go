// Package supervisor keeps the companion daemon running.
//
// A Supervisor spawns the daemon, forwards its stdout to the log, waits for
// it to exit, and restarts it after a delay when it fails. Restarts are gated
// by a rolling attempt window: once too many spawns fall inside the window
// the supervisor halts for good. A clean exit is treated as an anomaly and is
// not restarted.
//
// Every method must be called on the event loop that was passed to New.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"monistor/internal/attempts"
	"monistor/internal/drain"
	"monistor/internal/eventloop"
	"monistor/internal/logging"
)

// ErrAttemptLimit is reported when the attempt window denies a spawn.
var ErrAttemptLimit = errors.New("exceeded spawn attempts in window")

const (
	defaultBinary        = "monistord"
	defaultRestartDelay  = 2 * time.Second
	defaultMaxAttempts   = 3
	defaultAttemptWindow = time.Minute
)

// State is the supervisor lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateHalted     State = "halted"
	StateFailed     State = "failed"
	StateExited     State = "exited"
	StateStopped    State = "stopped"
)

// Options configures a Supervisor. Zero values take the defaults.
type Options struct {
	Binary        string
	Args          []string
	RestartDelay  time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	DrainStderr   bool
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = defaultBinary
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = defaultRestartDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.AttemptWindow <= 0 {
		o.AttemptWindow = defaultAttemptWindow
	}
	return o
}

// Snapshot is a copy of the supervisor state for status reporting.
type Snapshot struct {
	State       State
	Binary      string
	PID         int
	Spawns      int
	Attempts    []time.Time
	LastExit    *Exit
	NextRestart time.Time
}

// Supervisor owns at most one live child at a time.
type Supervisor struct {
	sched    eventloop.Scheduler
	spawner  Spawner
	logger   *slog.Logger
	opts     Options
	observer Observer
	window   *attempts.Window

	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	state       State
	child       Process
	restart     eventloop.Timer
	nextRestart time.Time
	spawns      int
	lastExit    *Exit
}

// New builds an idle supervisor. observer may be nil.
func New(sched eventloop.Scheduler, spawner Spawner, logger *slog.Logger, opts Options, observer Observer) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		sched:    sched,
		spawner:  spawner,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		opts:     opts,
		observer: observer,
		window:   attempts.New(opts.MaxAttempts, opts.AttemptWindow),
		state:    StateIdle,
	}
}

// Start spawns the first child. Only the first call has any effect.
func (s *Supervisor) Start() {
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.spawnAttempt()
}

// Stop cancels supervision, drops any pending restart, and kills the live
// child. It is safe to call with no child and to call more than once.
func (s *Supervisor) Stop() {
	if s.state == StateStopped {
		return
	}
	s.started = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
		s.nextRestart = time.Time{}
	}
	pid := 0
	if s.child != nil {
		pid = s.child.PID()
		if err := s.child.Kill(); err != nil {
			logging.WarnWithContext(s.logger, "failed to kill companion daemon", "kill_failed",
				logging.Error(err),
				logging.Int(logging.FieldPID, pid),
				logging.String(logging.FieldImpact, "the companion daemon may outlive monistor"),
			)
		}
		s.child = nil
	}
	s.state = StateStopped
	s.logger.Info("supervision stopped", logging.Int(logging.FieldPID, pid))
	s.emit(Event{Kind: EventStopped, PID: pid})
}

// Snapshot reports the current state.
func (s *Supervisor) Snapshot() Snapshot {
	snap := Snapshot{
		State:       s.state,
		Binary:      s.opts.Binary,
		Spawns:      s.spawns,
		Attempts:    s.window.Record(),
		NextRestart: s.nextRestart,
	}
	if s.child != nil {
		snap.PID = s.child.PID()
	}
	if s.lastExit != nil {
		exit := *s.lastExit
		snap.LastExit = &exit
	}
	return snap
}

// State is the current lifecycle position.
func (s *Supervisor) State() State {
	return s.state
}

func (s *Supervisor) spawnAttempt() {
	s.restart = nil
	s.nextRestart = time.Time{}
	if s.ctx.Err() != nil {
		return
	}

	if !s.window.Admit(s.sched.Now()) {
		s.state = StateHalted
		logging.ErrorWithContext(s.logger, "supervision halted", "supervisor_halted",
			logging.Error(ErrAttemptLimit),
			logging.Int("max_attempts", s.opts.MaxAttempts),
			logging.Duration("attempt_window", s.opts.AttemptWindow),
			logging.String(logging.FieldErrorHint, "inspect the companion daemon output, then re-enable monistor"),
		)
		s.emit(Event{Kind: EventHalted, Err: ErrAttemptLimit})
		return
	}

	proc, err := s.spawner.Spawn(s.opts.Binary, s.opts.Args...)
	if err != nil {
		s.state = StateFailed
		logging.ErrorWithContext(s.logger, "failed to spawn companion daemon", "spawn_failed",
			logging.Error(err),
			logging.String("binary", s.opts.Binary),
			logging.String(logging.FieldErrorHint, "check that the daemon binary is installed and on PATH"),
		)
		s.emit(Event{Kind: EventSpawnFailed, Err: err})
		return
	}

	s.child = proc
	s.spawns++
	s.state = StateRunning
	pid := proc.PID()
	s.logger.Info("companion daemon spawned",
		logging.Int(logging.FieldPID, pid),
		logging.String("binary", s.opts.Binary),
		logging.Int("attempt", s.window.Len()),
	)
	s.emit(Event{Kind: EventSpawned, PID: pid})

	base := s.logger.With(logging.Int(logging.FieldPID, pid))
	go drain.Forward(proc.Stdout(), base.With(logging.String(logging.FieldStream, "stdout")))
	if s.opts.DrainStderr {
		go drain.Forward(proc.Stderr(), base.With(logging.String(logging.FieldStream, "stderr")))
	}

	ctx := s.ctx
	go func() {
		exit := proc.Wait()
		s.sched.Post(func() { s.handleExit(ctx, proc, exit) })
	}()
}

func (s *Supervisor) handleExit(ctx context.Context, proc Process, exit Exit) {
	if ctx.Err() != nil || proc != s.child {
		return
	}
	s.child = nil
	s.lastExit = &exit
	pid := proc.PID()

	if exit.Success {
		s.state = StateExited
		logging.ErrorWithContext(s.logger, "companion daemon exited cleanly; not restarting", "daemon_exited_success",
			logging.Int(logging.FieldPID, pid),
			logging.String(logging.FieldErrorHint, "the daemon is not expected to exit; check its output"),
		)
		s.emit(Event{Kind: EventExitedSuccess, PID: pid, Exit: &exit})
		return
	}

	s.state = StateRestarting
	logging.WarnWithContext(s.logger, "companion daemon exited with failure", "daemon_exited_failure",
		logging.Int(logging.FieldPID, pid),
		logging.String("status", exit.String()),
		logging.Duration("restart_delay", s.opts.RestartDelay),
		logging.String(logging.FieldImpact, "display handling paused until restart"),
	)
	s.emit(Event{Kind: EventExitedFailure, PID: pid, Exit: &exit})

	s.nextRestart = s.sched.Now().Add(s.opts.RestartDelay)
	s.restart = s.sched.AfterFunc(s.opts.RestartDelay, s.spawnAttempt)
	s.emit(Event{Kind: EventRestartScheduled, PID: pid})
}

func (s *Supervisor) emit(ev Event) {
	if s.observer == nil {
		return
	}
	ev.At = s.sched.Now()
	ev.State = s.state
	s.observer(ev)
}

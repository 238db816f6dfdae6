// Package watchdog dismisses the "keep these display settings?" modal when
// it follows a display change the system already confirmed.
//
// The host gives no causal link between a confirmed display change and a
// modal. The watchdog treats a modal as caused by the change when, shortly
// after it opens, the last confirmed change is less than the trust window
// old. All methods must run on the event loop.
package watchdog

import (
	"log/slog"
	"time"

	"monistor/internal/eventloop"
	"monistor/internal/host"
	"monistor/internal/logging"
)

const (
	defaultCheckDelay  = 200 * time.Millisecond
	defaultTrustWindow = time.Second
)

// Options configures the correlation timing.
type Options struct {
	// CheckDelay lets the host finish opening the modal before it is judged.
	CheckDelay time.Duration
	// TrustWindow is measured back from the check, not from the modal opening.
	TrustWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.CheckDelay < 0 {
		o.CheckDelay = defaultCheckDelay
	}
	if o.TrustWindow <= 0 {
		o.TrustWindow = defaultTrustWindow
	}
	return o
}

// DefaultOptions returns the production timing.
func DefaultOptions() Options {
	return Options{CheckDelay: defaultCheckDelay, TrustWindow: defaultTrustWindow}
}

// EventKind names a watchdog decision.
type EventKind string

const (
	EventDisplayChangeAccepted EventKind = "display_change_accepted"
	EventModalClosed           EventKind = "modal_closed"
	EventModalLeftOpen         EventKind = "modal_left_open"
	EventModalStackEmpty       EventKind = "modal_stack_empty"
)

// Event reports one decision to the Observer.
type Event struct {
	Kind  EventKind
	At    time.Time
	Modal string
	// SinceTrusted is the age of the trust mark at decision time, or -1 when
	// no trusted change has been seen.
	SinceTrusted time.Duration
	Err          error
}

// Observer receives decisions on the loop.
type Observer func(Event)

// Stats counts decisions since construction.
type Stats struct {
	Accepted    int
	Closed      int
	LeftOpen    int
	EmptyStack  int
	Pending     int
	LastTrusted time.Time
}

// Watchdog correlates trusted display changes with modal notifications.
type Watchdog struct {
	sched    eventloop.Scheduler
	shell    host.Shell
	logger   *slog.Logger
	opts     Options
	observer Observer

	mark    time.Time
	hasMark bool

	pending map[uint64]eventloop.Timer
	nextID  uint64
	closed  bool
	stats   Stats
}

// New builds a watchdog. A zero CheckDelay means the check runs on the next
// loop turn; pass DefaultOptions for production timing.
func New(sched eventloop.Scheduler, shell host.Shell, logger *slog.Logger, opts Options, observer Observer) *Watchdog {
	return &Watchdog{
		sched:    sched,
		shell:    shell,
		logger:   logging.NewComponentLogger(logger, "watchdog"),
		opts:     opts.withDefaults(),
		observer: observer,
		pending:  make(map[uint64]eventloop.Timer),
	}
}

// Attach subscribes both handlers on src through reg.
func (w *Watchdog) Attach(reg *host.Registry, src host.Source) error {
	if _, err := reg.Connect(src, host.KindDisplayChangeConfirmed, func(ev host.Event) {
		if change, ok := ev.(host.TrustedDisplayChangeEvent); ok {
			w.HandleDisplayChange(change)
		}
	}); err != nil {
		return err
	}
	_, err := reg.Connect(src, host.KindModalOpened, func(ev host.Event) {
		if opened, ok := ev.(host.ModalOpenedEvent); ok {
			w.HandleModalOpened(opened)
		}
	})
	return err
}

// HandleDisplayChange records the trust mark and accepts the change. The
// accept is issued on every confirmation.
func (w *Watchdog) HandleDisplayChange(host.TrustedDisplayChangeEvent) {
	if w.closed {
		return
	}
	now := w.sched.Now()
	w.mark = now
	w.hasMark = true
	w.stats.LastTrusted = now
	w.stats.Accepted++

	w.logger.Info("confirming display change automatically")
	err := w.shell.CompleteDisplayChange(true)
	if err != nil {
		logging.WarnWithContext(w.logger, "display change accept failed", "display_accept_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the host may revert the display configuration"),
		)
	}
	w.emit(Event{Kind: EventDisplayChangeAccepted, SinceTrusted: 0, Err: err})
}

// HandleModalOpened captures the top modal and schedules its check.
func (w *Watchdog) HandleModalOpened(host.ModalOpenedEvent) {
	if w.closed {
		return
	}
	stack := w.shell.ModalStack()
	if len(stack) == 0 {
		w.stats.EmptyStack++
		logging.WarnWithContext(w.logger, "system modal signal emitted but no modals in stack", "modal_stack_empty",
			logging.String(logging.FieldImpact, "nothing to close"),
		)
		w.emit(Event{Kind: EventModalStackEmpty, SinceTrusted: w.sinceTrusted()})
		return
	}

	modal := stack[len(stack)-1]
	w.logger.Debug("system modal opened", logging.String(logging.FieldModal, modal.ID))

	id := w.nextID
	w.nextID++
	w.pending[id] = w.sched.AfterFunc(w.opts.CheckDelay, func() {
		delete(w.pending, id)
		w.check(modal)
	})
}

func (w *Watchdog) check(modal host.Modal) {
	if w.closed {
		return
	}
	since := w.sinceTrusted()
	if w.hasMark && since < w.opts.TrustWindow {
		w.stats.Closed++
		w.logger.Info("closing display confirmation modal",
			logging.String(logging.FieldModal, modal.ID),
			logging.Duration("since_trusted", since),
		)
		err := w.shell.CloseModal(modal)
		if err != nil {
			logging.WarnWithContext(w.logger, "close modal failed", "modal_close_failed",
				logging.Error(err),
				logging.String(logging.FieldModal, modal.ID),
				logging.String(logging.FieldImpact, "the confirmation dialog stays on screen"),
			)
		}
		w.emit(Event{Kind: EventModalClosed, Modal: modal.ID, SinceTrusted: since, Err: err})
		return
	}

	w.stats.LeftOpen++
	w.logger.Info("system modal detected, but it was not shown to be a monitor modal",
		logging.String(logging.FieldModal, modal.ID),
	)
	w.emit(Event{Kind: EventModalLeftOpen, Modal: modal.ID, SinceTrusted: since})
}

// Close cancels pending checks. Later notifications are ignored.
func (w *Watchdog) Close() {
	if w.closed {
		return
	}
	w.closed = true
	for id, timer := range w.pending {
		timer.Stop()
		delete(w.pending, id)
	}
}

// Stats returns decision counters.
func (w *Watchdog) Stats() Stats {
	s := w.stats
	s.Pending = len(w.pending)
	return s
}

func (w *Watchdog) sinceTrusted() time.Duration {
	if !w.hasMark {
		return -1
	}
	return w.sched.Now().Sub(w.mark)
}

func (w *Watchdog) emit(ev Event) {
	if w.observer == nil {
		return
	}
	ev.At = w.sched.Now()
	w.observer(ev)
}

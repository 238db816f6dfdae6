// Package bridge adapts the desktop shell to the host interfaces.
//
// A thin glue script inside the shell forwards notifications and the modal
// stack over the control socket with Notify, and long-polls NextCommand for
// the accept and close instructions the watchdog issues.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"monistor/internal/eventloop"
	"monistor/internal/host"
	"monistor/internal/logging"
)

// KindModalStack only refreshes the modal stack snapshot.
const KindModalStack = "modal-stack"

const maxQueuedCommands = 256

// CommandKind names an instruction for the shell glue.
type CommandKind string

const (
	CommandCompleteDisplayChange CommandKind = "complete-display-change"
	CommandCloseModal            CommandKind = "close-modal"
)

// Command is one queued shell instruction. Seq increases by one per command.
type Command struct {
	Seq     uint64      `json:"seq"`
	Kind    CommandKind `json:"kind"`
	ModalID string      `json:"modal_id,omitempty"`
	Accept  bool        `json:"accept,omitempty"`
	Issued  time.Time   `json:"issued"`
}

// Stats summarizes bridge traffic.
type Stats struct {
	Subscriptions int
	ModalStack    int
	Queued        int
	Issued        uint64
	Dropped       uint64
	Notifications map[string]int
}

type subscription struct {
	kind    host.EventKind
	handler host.Handler
}

// Bridge implements host.Source and host.Shell. Notify and NextCommand are
// safe from any goroutine; handlers always run on the loop.
type Bridge struct {
	sched  eventloop.Scheduler
	logger *slog.Logger

	mu       sync.Mutex
	next     host.Handle
	handlers map[host.Handle]subscription
	stack    []host.Modal
	queue    []Command
	seq      uint64
	dropped  uint64
	counts   map[string]int
	ready    chan struct{}
}

var (
	_ host.Source = (*Bridge)(nil)
	_ host.Shell  = (*Bridge)(nil)
)

func New(sched eventloop.Scheduler, logger *slog.Logger) *Bridge {
	return &Bridge{
		sched:    sched,
		logger:   logging.NewComponentLogger(logger, "bridge"),
		handlers: make(map[host.Handle]subscription),
		counts:   make(map[string]int),
		ready:    make(chan struct{}),
	}
}

func (b *Bridge) Subscribe(kind host.EventKind, h host.Handler) (host.Handle, error) {
	if _, err := host.ParseKind(string(kind)); err != nil {
		return 0, fmt.Errorf("%w: %q", err, kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.handlers[b.next] = subscription{kind: kind, handler: h}
	return b.next, nil
}

func (b *Bridge) Unsubscribe(h host.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[h]; !ok {
		return fmt.Errorf("%w: %d", host.ErrUnknownHandle, h)
	}
	delete(b.handlers, h)
	return nil
}

// Notify records a shell notification. A non-nil stack replaces the modal
// stack snapshot before any handler runs. Handlers subscribed to kind at
// dispatch time are invoked on the loop.
func (b *Bridge) Notify(kind string, stack []string) error {
	var ev host.Event
	if kind != KindModalStack {
		parsed, err := host.ParseKind(kind)
		if err != nil {
			return fmt.Errorf("%w: %q", err, kind)
		}
		ev = eventFor(parsed)
	}

	b.mu.Lock()
	if stack != nil {
		modals := make([]host.Modal, 0, len(stack))
		for _, id := range stack {
			modals = append(modals, host.Modal{ID: id})
		}
		b.stack = modals
	}
	b.counts[kind]++
	b.mu.Unlock()

	if ev == nil {
		return nil
	}
	b.logger.Debug("shell notification", logging.String(logging.FieldEventType, kind), logging.Int("stack", len(stack)))
	b.sched.Post(func() { b.dispatch(ev) })
	return nil
}

func (b *Bridge) dispatch(ev host.Event) {
	b.mu.Lock()
	var targets []host.Handler
	for _, sub := range b.handlers {
		if sub.kind == ev.Kind() {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.Unlock()
	for _, h := range targets {
		h(ev)
	}
}

func (b *Bridge) ModalStack() []host.Modal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]host.Modal(nil), b.stack...)
}

// CloseModal queues a close instruction and drops the modal from the local
// snapshot. The glue resynchronizes the stack on its next notification.
func (b *Bridge) CloseModal(m host.Modal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, open := range b.stack {
		if open == m {
			b.stack = append(b.stack[:i], b.stack[i+1:]...)
			break
		}
	}
	b.enqueueLocked(Command{Kind: CommandCloseModal, ModalID: m.ID})
	return nil
}

func (b *Bridge) CompleteDisplayChange(accept bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueueLocked(Command{Kind: CommandCompleteDisplayChange, Accept: accept})
	return nil
}

// NextCommand returns the oldest queued command, waiting up to wait for one
// to arrive. It reports false on timeout or when ctx ends.
func (b *Bridge) NextCommand(ctx context.Context, wait time.Duration) (Command, bool) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			cmd := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return cmd, true
		}
		ready := b.ready
		b.mu.Unlock()

		if timeout == nil {
			return Command{}, false
		}
		select {
		case <-ready:
		case <-timeout:
			return Command{}, false
		case <-ctx.Done():
			return Command{}, false
		}
	}
}

// Stats returns traffic counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[string]int, len(b.counts))
	for k, v := range b.counts {
		counts[k] = v
	}
	return Stats{
		Subscriptions: len(b.handlers),
		ModalStack:    len(b.stack),
		Queued:        len(b.queue),
		Issued:        b.seq,
		Dropped:       b.dropped,
		Notifications: counts,
	}
}

func (b *Bridge) enqueueLocked(cmd Command) {
	b.seq++
	cmd.Seq = b.seq
	cmd.Issued = b.sched.Now()
	if len(b.queue) >= maxQueuedCommands {
		b.queue = b.queue[1:]
		b.dropped++
		logging.WarnWithContext(b.logger, "shell command queue full; dropped oldest", "command_dropped",
			logging.String(logging.FieldErrorHint, "check that the shell glue is polling for commands"),
		)
	}
	b.queue = append(b.queue, cmd)
	close(b.ready)
	b.ready = make(chan struct{})
}

func eventFor(kind host.EventKind) host.Event {
	if kind == host.KindDisplayChangeConfirmed {
		return host.TrustedDisplayChangeEvent{}
	}
	return host.ModalOpenedEvent{}
}

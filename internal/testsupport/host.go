package testsupport

import (
	"sync"

	"monistor/internal/host"
)

// FakeHost implements host.Source and host.Shell in memory. Emit invokes
// handlers synchronously, so call it from the goroutine that owns the loop.
type FakeHost struct {
	mu       sync.Mutex
	next     host.Handle
	handlers map[host.Handle]subscription
	stack    []host.Modal
	closed   []host.Modal
	accepts  []bool
}

type subscription struct {
	kind    host.EventKind
	handler host.Handler
}

func NewFakeHost() *FakeHost {
	return &FakeHost{handlers: make(map[host.Handle]subscription)}
}

func (f *FakeHost) Subscribe(kind host.EventKind, h host.Handler) (host.Handle, error) {
	if _, err := host.ParseKind(string(kind)); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.handlers[f.next] = subscription{kind: kind, handler: h}
	return f.next, nil
}

func (f *FakeHost) Unsubscribe(h host.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[h]; !ok {
		return host.ErrUnknownHandle
	}
	delete(f.handlers, h)
	return nil
}

// Subscriptions counts live handlers.
func (f *FakeHost) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Emit delivers ev to every handler subscribed to its kind.
func (f *FakeHost) Emit(ev host.Event) {
	f.mu.Lock()
	var targets []host.Handler
	for _, sub := range f.handlers {
		if sub.kind == ev.Kind() {
			targets = append(targets, sub.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range targets {
		h(ev)
	}
}

// OpenModal pushes a modal onto the stack.
func (f *FakeHost) OpenModal(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stack = append(f.stack, host.Modal{ID: id})
}

func (f *FakeHost) ModalStack() []host.Modal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Modal(nil), f.stack...)
}

func (f *FakeHost) CloseModal(m host.Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, m)
	for i, open := range f.stack {
		if open == m {
			f.stack = append(f.stack[:i], f.stack[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeHost) CompleteDisplayChange(accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, accept)
	return nil
}

// ClosedModals lists every CloseModal call in order.
func (f *FakeHost) ClosedModals() []host.Modal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Modal(nil), f.closed...)
}

// Accepts lists every CompleteDisplayChange argument in order.
func (f *FakeHost) Accepts() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.accepts...)
}

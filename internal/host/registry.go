package host

import (
	"errors"
	"fmt"
	"sync"
)

// Registry remembers every subscription made through it, grouped by source,
// so teardown can release them in one call.
type Registry struct {
	mu   sync.Mutex
	subs map[Source][]Handle
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[Source][]Handle)}
}

// Connect subscribes h to kind on src and records the handle.
func (r *Registry) Connect(src Source, kind EventKind, h Handler) (Handle, error) {
	handle, err := src.Subscribe(kind, h)
	if err != nil {
		return 0, fmt.Errorf("subscribe %s: %w", kind, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[src] = append(r.subs[src], handle)
	return handle, nil
}

// Len counts recorded subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, handles := range r.subs {
		n += len(handles)
	}
	return n
}

// ReleaseAll unsubscribes every recorded handle and forgets them, even when
// some unsubscribes fail. The failures are joined.
func (r *Registry) ReleaseAll() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[Source][]Handle)
	r.mu.Unlock()

	var errs []error
	for src, handles := range subs {
		for _, handle := range handles {
			if err := src.Unsubscribe(handle); err != nil {
				errs = append(errs, fmt.Errorf("unsubscribe %d: %w", handle, err))
			}
		}
	}
	return errors.Join(errs...)
}

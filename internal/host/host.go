// Package host defines the narrow surface monistor needs from the desktop
// shell: two notifications, the modal stack, and two commands.
package host

import "errors"

var (
	// ErrUnknownEvent is returned for notification kinds the host does not emit.
	ErrUnknownEvent = errors.New("unknown host event")
	// ErrUnknownHandle is returned when unsubscribing a handle that is not live.
	ErrUnknownHandle = errors.New("unknown subscription handle")
)

// EventKind names a host notification.
type EventKind string

const (
	// KindDisplayChangeConfirmed fires when the host asks whether to keep a
	// new display configuration.
	KindDisplayChangeConfirmed EventKind = "display-change-confirmed"
	// KindModalOpened fires when any system modal opens.
	KindModalOpened EventKind = "modal-opened"
)

// ParseKind maps a wire name to an EventKind.
func ParseKind(name string) (EventKind, error) {
	switch kind := EventKind(name); kind {
	case KindDisplayChangeConfirmed, KindModalOpened:
		return kind, nil
	default:
		return "", ErrUnknownEvent
	}
}

// Event is a tagged host notification.
type Event interface {
	Kind() EventKind
}

// TrustedDisplayChangeEvent reports a display change the system itself
// initiated. It carries no payload.
type TrustedDisplayChangeEvent struct{}

func (TrustedDisplayChangeEvent) Kind() EventKind { return KindDisplayChangeConfirmed }

// ModalOpenedEvent reports that some modal opened. Nothing identifies its
// cause.
type ModalOpenedEvent struct{}

func (ModalOpenedEvent) Kind() EventKind { return KindModalOpened }

// Handler receives notifications on the event loop.
type Handler func(Event)

// Handle identifies one subscription.
type Handle uint64

// Modal references a modal actor on the host. The host owns it.
type Modal struct {
	ID string `json:"id"`
}

// Source delivers host notifications.
type Source interface {
	Subscribe(kind EventKind, h Handler) (Handle, error)
	Unsubscribe(h Handle) error
}

// Shell exposes the host operations the watchdog drives.
type Shell interface {
	// ModalStack lists open modals, most recently opened last.
	ModalStack() []Modal
	CloseModal(m Modal) error
	CompleteDisplayChange(accept bool) error
}

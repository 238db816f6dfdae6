package supervisor

import "time"

// EventKind names a supervisor transition.
type EventKind string

const (
	EventSpawned          EventKind = "spawned"
	EventSpawnFailed      EventKind = "spawn_failed"
	EventHalted           EventKind = "halted"
	EventExitedSuccess    EventKind = "exited_success"
	EventExitedFailure    EventKind = "exited_failure"
	EventRestartScheduled EventKind = "restart_scheduled"
	EventStopped          EventKind = "stopped"
)

// Event is delivered to the Observer on the loop after every transition.
type Event struct {
	Kind  EventKind
	At    time.Time
	State State
	PID   int
	Exit  *Exit
	Err   error
}

// Detail is a one-line human summary for history listings.
func (e Event) Detail() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Exit != nil:
		return e.Exit.String()
	default:
		return ""
	}
}

// Observer receives supervisor events. It runs on the loop and must not block.
type Observer func(Event)

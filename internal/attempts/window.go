// Package attempts implements the rolling-window limiter that gates
// companion daemon spawns.
package attempts

import "time"

// Window remembers the most recent admitted attempts, oldest first. Once it
// holds capacity entries a new attempt is admitted only when the oldest one
// is more than span old.
type Window struct {
	capacity int
	span     time.Duration
	record   []time.Time
}

// New returns an empty window. A capacity below one is treated as one.
func New(capacity int, span time.Duration) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		span:     span,
		record:   make([]time.Time, 0, capacity+1),
	}
}

// Admit reports whether an attempt at now may proceed and records it when it
// may. A denied attempt leaves the record untouched.
func (w *Window) Admit(now time.Time) bool {
	if len(w.record) >= w.capacity && now.Sub(w.record[0]) <= w.span {
		return false
	}
	w.record = append(w.record, now)
	if extra := len(w.record) - w.capacity; extra > 0 {
		w.record = append(w.record[:0], w.record[extra:]...)
	}
	return true
}

// Record returns a copy of the recorded attempts, oldest first.
func (w *Window) Record() []time.Time {
	return append([]time.Time(nil), w.record...)
}

// Len is the number of recorded attempts.
func (w *Window) Len() int {
	return len(w.record)
}

// Capacity is the number of attempts the window tracks.
func (w *Window) Capacity() int {
	return w.capacity
}

// Span is the window length.
func (w *Window) Span() time.Duration {
	return w.span
}

package testsupport

import (
	"slices"
	"sync"
	"testing"
	"time"

	"monistor/internal/eventloop"
)

// ManualLoop is a deterministic eventloop.Scheduler. Time only moves when
// Advance is called, and posted callbacks only run inside Flush, Advance, or
// Await, on the test goroutine.
type ManualLoop struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
	posted chan struct{}
}

// NewManualLoop starts the clock at a fixed instant.
func NewManualLoop() *ManualLoop {
	return &ManualLoop{
		now:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		posted: make(chan struct{}, 1),
	}
}

type manualTimer struct {
	loop    *ManualLoop
	at      time.Time
	seq     int
	fn      func()
	fired   bool
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (m *ManualLoop) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post may be called from any goroutine.
func (m *ManualLoop) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.posted <- struct{}{}:
	default:
	}
}

func (m *ManualLoop) AfterFunc(d time.Duration, fn func()) eventloop.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{loop: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Flush runs queued callbacks, including ones they post, until the queue is
// empty.
func (m *ManualLoop) Flush() {
	for {
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (m *ManualLoop) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.Flush()
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			m.Flush()
			return
		}
		next.fired = true
		m.now = next.at
		m.mu.Unlock()
		next.fn()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (m *ManualLoop) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Await runs posted callbacks until cond holds, failing the test after two
// seconds. Use it when a helper goroutine posts results back to the loop.
func (m *ManualLoop) Await(t testing.TB, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		m.Flush()
		if cond() {
			return
		}
		select {
		case <-m.posted:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not met within 2s")
		}
	}
}

func (m *ManualLoop) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	return slices.MinFunc(due, func(a, b *manualTimer) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
}

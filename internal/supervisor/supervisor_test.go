package supervisor_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"monistor/internal/logging"
	"monistor/internal/supervisor"
	"monistor/internal/testsupport"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	loop    *testsupport.ManualLoop
	spawner *testsupport.FakeSpawner
	sup     *supervisor.Supervisor
	events  []supervisor.Event
	logs    *syncBuffer
}

func newHarness(t *testing.T, opts supervisor.Options) *harness {
	t.Helper()
	h := &harness{
		loop:    testsupport.NewManualLoop(),
		spawner: testsupport.NewFakeSpawner(),
		logs:    &syncBuffer{},
	}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: logging.LevelRaw}))
	h.sup = supervisor.New(h.loop, h.spawner, logger, opts, func(ev supervisor.Event) {
		h.events = append(h.events, ev)
	})
	t.Cleanup(func() {
		for _, p := range h.spawner.Processes() {
			_ = p.Kill()
		}
	})
	return h
}

func (h *harness) kinds() []supervisor.EventKind {
	out := make([]supervisor.EventKind, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (h *harness) awaitState(t *testing.T, want supervisor.State) {
	t.Helper()
	h.loop.Await(t, func() bool { return h.sup.State() == want })
}

func TestStartSpawnsConfiguredBinary(t *testing.T) {
	h := newHarness(t, supervisor.Options{Binary: "monistord", Args: []string{"--json"}})
	h.sup.Start()

	if h.spawner.Count() != 1 {
		t.Fatalf("spawn count = %d, want 1", h.spawner.Count())
	}
	proc := h.spawner.Last()
	if proc.Name() != "monistord" || len(proc.Args()) != 1 || proc.Args()[0] != "--json" {
		t.Fatalf("unexpected spawn %s %v", proc.Name(), proc.Args())
	}
	snap := h.sup.Snapshot()
	if snap.State != supervisor.StateRunning || snap.PID != proc.PID() || snap.Spawns != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(h.events) != 1 || h.events[0].Kind != supervisor.EventSpawned {
		t.Fatalf("unexpected events %v", h.kinds())
	}

	h.sup.Start()
	if h.spawner.Count() != 1 {
		t.Fatal("second Start spawned again")
	}
}

func TestFailureExitRestartsAfterDelay(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()
	h.spawner.Last().Fail(1)
	h.awaitState(t, supervisor.StateRestarting)

	snap := h.sup.Snapshot()
	if snap.LastExit == nil || snap.LastExit.Code != 1 {
		t.Fatalf("expected last exit status 1, got %+v", snap.LastExit)
	}
	if want := h.loop.Now().Add(2 * time.Second); !snap.NextRestart.Equal(want) {
		t.Fatalf("next restart = %s, want %s", snap.NextRestart, want)
	}

	h.loop.Advance(1999 * time.Millisecond)
	if h.spawner.Count() != 1 {
		t.Fatal("restarted before the delay elapsed")
	}
	h.loop.Advance(time.Millisecond)
	if h.spawner.Count() != 2 {
		t.Fatalf("spawn count = %d after delay, want 2", h.spawner.Count())
	}
	if h.sup.State() != supervisor.StateRunning {
		t.Fatalf("state = %s, want running", h.sup.State())
	}
	if !strings.Contains(h.logs.String(), "companion daemon exited with failure") {
		t.Fatalf("expected failure warning:\n%s", h.logs.String())
	}
}

func TestSuccessExitIsNotRestarted(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()
	h.spawner.Last().Succeed()
	h.awaitState(t, supervisor.StateExited)

	if h.loop.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", h.loop.Pending())
	}
	h.loop.Advance(time.Hour)
	if h.spawner.Count() != 1 {
		t.Fatalf("clean exit was restarted (%d spawns)", h.spawner.Count())
	}
	if !strings.Contains(h.logs.String(), "level=ERROR") {
		t.Fatalf("expected clean exit to be logged as an error:\n%s", h.logs.String())
	}
}

func TestCrashLoopHaltsAfterThreeAttempts(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()

	for i := 1; i <= 3; i++ {
		h.spawner.Last().Fail(2)
		h.awaitState(t, supervisor.StateRestarting)
		h.loop.Advance(2 * time.Second)
		if i < 3 && h.spawner.Count() != i+1 {
			t.Fatalf("after failure %d spawn count = %d", i, h.spawner.Count())
		}
	}

	if h.sup.State() != supervisor.StateHalted {
		t.Fatalf("state = %s, want halted", h.sup.State())
	}
	if h.spawner.Count() != 3 {
		t.Fatalf("spawn count = %d, want 3", h.spawner.Count())
	}
	if h.loop.Pending() != 0 {
		t.Fatal("halted supervisor left a timer pending")
	}
	h.loop.Advance(10 * time.Minute)
	if h.spawner.Count() != 3 {
		t.Fatal("halt healed itself after the window")
	}
	last := h.events[len(h.events)-1]
	if last.Kind != supervisor.EventHalted || !errors.Is(last.Err, supervisor.ErrAttemptLimit) {
		t.Fatalf("unexpected final event %+v", last)
	}
	if !strings.Contains(h.logs.String(), supervisor.ErrAttemptLimit.Error()) {
		t.Fatalf("expected attempt limit log:\n%s", h.logs.String())
	}
}

func TestSlowFailuresKeepRestarting(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()

	for i := range 5 {
		h.loop.Advance(40 * time.Second)
		h.spawner.Last().Fail(1)
		h.awaitState(t, supervisor.StateRestarting)
		h.loop.Advance(2 * time.Second)
		if h.spawner.Count() != i+2 {
			t.Fatalf("iteration %d: spawn count = %d", i, h.spawner.Count())
		}
	}
	if got := len(h.sup.Snapshot().Attempts); got != 3 {
		t.Fatalf("attempt record length = %d, want 3", got)
	}
}

func TestStopKillsChildAndIgnoresItsExit(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()
	proc := h.spawner.Last()

	h.sup.Stop()
	if !proc.Killed() {
		t.Fatal("expected live child to be killed")
	}

	time.Sleep(20 * time.Millisecond)
	h.loop.Flush()
	h.loop.Advance(time.Minute)

	if h.spawner.Count() != 1 {
		t.Fatalf("exit after stop triggered a respawn (%d spawns)", h.spawner.Count())
	}
	if h.sup.State() != supervisor.StateStopped {
		t.Fatalf("state = %s, want stopped", h.sup.State())
	}
	if strings.Contains(h.logs.String(), "exited with failure") {
		t.Fatalf("cancelled wait was reported as a failure:\n%s", h.logs.String())
	}
}

func TestStopCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()
	h.spawner.Last().Fail(1)
	h.awaitState(t, supervisor.StateRestarting)

	h.sup.Stop()
	if h.loop.Pending() != 0 {
		t.Fatalf("pending timers after stop: %d", h.loop.Pending())
	}
	h.loop.Advance(5 * time.Second)
	if h.spawner.Count() != 1 {
		t.Fatal("restart fired after stop")
	}
}

func TestStopIsIdempotentAndSafeWithoutChild(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Stop()
	h.sup.Stop()
	h.sup.Start()

	if h.spawner.Count() != 0 {
		t.Fatal("Start after Stop spawned a child")
	}
	stopped := 0
	for _, k := range h.kinds() {
		if k == supervisor.EventStopped {
			stopped++
		}
	}
	if stopped != 1 {
		t.Fatalf("expected one stopped event, got %d", stopped)
	}
}

func TestSpawnFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, supervisor.Options{Binary: "missing-daemon"})
	h.spawner.FailWith(testsupport.ErrSpawnRefused)
	h.sup.Start()

	if h.sup.State() != supervisor.StateFailed {
		t.Fatalf("state = %s, want failed", h.sup.State())
	}
	if h.loop.Pending() != 0 {
		t.Fatal("spawn failure scheduled a retry")
	}
	if len(h.events) != 1 || h.events[0].Kind != supervisor.EventSpawnFailed {
		t.Fatalf("unexpected events %v", h.kinds())
	}
	if !strings.Contains(h.logs.String(), "missing-daemon") {
		t.Fatalf("expected binary name in log:\n%s", h.logs.String())
	}
}

func awaitLog(t *testing.T, logs *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("log never contained %q:\n%s", want, logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStdoutIsForwardedAtRawLevel(t *testing.T) {
	h := newHarness(t, supervisor.Options{})
	h.sup.Start()
	if err := h.spawner.Last().WriteStdout("Entering streaming loop\n"); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	awaitLog(t, h.logs, `msg="Entering streaming loop"`)
	if !strings.Contains(h.logs.String(), "stream=stdout") {
		t.Fatalf("expected stream attribute:\n%s", h.logs.String())
	}
}

func TestStderrDrainIsOptional(t *testing.T) {
	h := newHarness(t, supervisor.Options{DrainStderr: true})
	h.sup.Start()
	if err := h.spawner.Last().WriteStderr("warning: no outputs\n"); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	awaitLog(t, h.logs, "stream=stderr")
}

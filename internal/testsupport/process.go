package testsupport

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"monistor/internal/supervisor"
)

// FakeProcess is an in-memory supervisor.Process. Output written with
// WriteStdout is read by whoever drains Stdout.
type FakeProcess struct {
	pid     int
	name    string
	args    []string
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	exit    chan supervisor.Exit
	once    sync.Once
	killed  atomic.Bool
}

func newFakeProcess(pid int, name string, args []string) *FakeProcess {
	p := &FakeProcess{pid: pid, name: name, args: args, exit: make(chan supervisor.Exit, 1)}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *FakeProcess) PID() int {
	return p.pid
}

func (p *FakeProcess) Stdout() io.ReadCloser {
	return p.stdoutR
}

func (p *FakeProcess) Stderr() io.ReadCloser {
	return p.stderrR
}

func (p *FakeProcess) Wait() supervisor.Exit {
	return <-p.exit
}

func (p *FakeProcess) Killed() bool {
	return p.killed.Load()
}

func (p *FakeProcess) Name() string {
	return p.name
}

func (p *FakeProcess) Args() []string {
	return append([]string(nil), p.args...)
}

func (p *FakeProcess) WriteStdout(s string) error {
	return write(p.stdoutW, s)
}

func (p *FakeProcess) WriteStderr(s string) error {
	return write(p.stderrW, s)
}

// Exit terminates the fake with e. Later calls are ignored.
func (p *FakeProcess) Exit(e supervisor.Exit) {
	p.once.Do(func() {
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		p.exit <- e
	})
}

// Fail exits with status code.
func (p *FakeProcess) Fail(code int) {
	p.Exit(supervisor.Exit{Code: code})
}

// Succeed exits with status 0.
func (p *FakeProcess) Succeed() {
	p.Exit(supervisor.Exit{Success: true})
}

func (p *FakeProcess) Kill() error {
	p.killed.Store(true)
	p.Exit(supervisor.Exit{Code: -1, Signal: "SIGKILL"})
	return nil
}

func write(w *io.PipeWriter, s string) error {
	_, err := io.WriteString(w, s)
	return err
}

// FakeSpawner records spawn calls and hands out FakeProcesses.
type FakeSpawner struct {
	mu      sync.Mutex
	procs   []*FakeProcess
	nextPID int
	err     error
}

// ErrSpawnRefused is a ready-made failure for FailWith.
var ErrSpawnRefused = errors.New("spawn refused")

func NewFakeSpawner() *FakeSpawner {
	return &FakeSpawner{nextPID: 4000}
}

// FailWith makes every later Spawn return err; nil restores success.
func (s *FakeSpawner) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *FakeSpawner) Spawn(name string, args ...string) (supervisor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.nextPID++
	p := newFakeProcess(s.nextPID, name, args)
	s.procs = append(s.procs, p)
	return p, nil
}

// Count is the number of successful spawns.
func (s *FakeSpawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Last returns the most recent process, or nil.
func (s *FakeSpawner) Last() *FakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

// Processes returns every spawned process in order.
func (s *FakeSpawner) Processes() []*FakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeProcess(nil), s.procs...)
}

package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecSpawner starts real OS processes resolved through PATH. Each child
// gets its own process group so Kill also reaches anything it forked.
type ExecSpawner struct {
	// Env, when non-nil, replaces the inherited environment.
	Env []string
	// Dir is the working directory; empty inherits ours.
	Dir string
}

// Spawn starts name with args. The parent keeps only the read ends of the
// stdout and stderr pipes.
func (s ExecSpawner) Spawn(name string, args ...string) (Process, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", name, err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Env = s.Env
	cmd.Dir = s.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	closeAll(stdoutW, stderrW)

	return &execProcess{cmd: cmd, stdout: stdoutR, stderr: stderrR}, nil
}

type execProcess struct {
	cmd         *exec.Cmd
	stdout      *os.File
	stderr      *os.File
	stderrTaken atomic.Bool
	waited      atomic.Bool
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdout() io.ReadCloser {
	return p.stdout
}

// Stderr hands out the stderr reader. When nobody asks for it, Wait closes
// it so the descriptor is not leaked.
func (p *execProcess) Stderr() io.ReadCloser {
	p.stderrTaken.Store(true)
	return p.stderr
}

func (p *execProcess) Wait() Exit {
	err := p.cmd.Wait()
	p.waited.Store(true)
	if !p.stderrTaken.Load() {
		_ = p.stderr.Close()
	}
	return classify(err)
}

// Kill signals the whole process group. Once Wait has reaped the child the
// pid may belong to someone else, so Kill does nothing.
func (p *execProcess) Kill() error {
	if p.waited.Load() {
		return nil
	}
	pid := p.cmd.Process.Pid
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

func classify(err error) Exit {
	if err == nil {
		return Exit{Success: true}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return Exit{Code: -1, Signal: unix.SignalName(status.Signal())}
		}
		return Exit{Code: exitErr.ExitCode()}
	}
	return Exit{Code: -1, Err: err}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

package supervisor

import (
	"fmt"
	"io"
)

// Exit describes how a child process terminated.
type Exit struct {
	// Success is true only when the OS reported exit status 0.
	Success bool
	Code    int
	// Signal names the terminating signal, if any.
	Signal string
	// Err is set when the wait itself failed.
	Err error
}

func (e Exit) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("wait failed: %v", e.Err)
	case e.Signal != "":
		return "signal: " + e.Signal
	default:
		return fmt.Sprintf("exit status %d", e.Code)
	}
}

// Process is a spawned child. Wait is called exactly once, from a helper
// goroutine. Kill may be called at any time and must not block.
type Process interface {
	PID() int
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Wait() Exit
	Kill() error
}

// Spawner launches child processes with stdout and stderr captured.
type Spawner interface {
	Spawn(name string, args ...string) (Process, error)
}

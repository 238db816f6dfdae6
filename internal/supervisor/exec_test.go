package supervisor_test

import (
	"bufio"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"monistor/internal/supervisor"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
}

func TestExecSpawnerCapturesStdoutAndStatus(t *testing.T) {
	requireShell(t)
	proc, err := supervisor.ExecSpawner{}.Spawn("sh", "-c", "echo ready; exit 3")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	out, err := io.ReadAll(proc.Stdout())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	exit := proc.Wait()
	if strings.TrimSpace(string(out)) != "ready" {
		t.Fatalf("stdout = %q", out)
	}
	if exit.Success || exit.Code != 3 {
		t.Fatalf("unexpected exit %+v", exit)
	}
}

func TestExecSpawnerReportsSuccess(t *testing.T) {
	requireShell(t)
	proc, err := supervisor.ExecSpawner{}.Spawn("sh", "-c", "exit 0")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if exit := proc.Wait(); !exit.Success {
		t.Fatalf("expected success, got %s", exit)
	}
}

func TestExecSpawnerKillTerminatesProcessGroup(t *testing.T) {
	requireShell(t)
	proc, err := supervisor.ExecSpawner{}.Spawn("sh", "-c", "sleep 30 & sleep 30")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	exit := proc.Wait()
	if exit.Success || exit.Signal != "SIGKILL" {
		t.Fatalf("unexpected exit %+v", exit)
	}
	// The background sleep shares the group, so stdout reaches EOF only if it
	// was killed too.
	if _, err := io.ReadAll(proc.Stdout()); err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("second Kill should be harmless: %v", err)
	}
}

func TestExecSpawnerKillAfterWaitLeavesGroupAlone(t *testing.T) {
	requireShell(t)
	proc, err := supervisor.ExecSpawner{}.Spawn("sh", "-c", "sleep 30 & echo $!")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	line, err := bufio.NewReader(proc.Stdout()).ReadString('\n')
	if err != nil {
		t.Fatalf("read leftover pid: %v", err)
	}
	leftover, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		t.Fatalf("parse pid %q: %v", line, err)
	}
	t.Cleanup(func() { _ = unix.Kill(leftover, unix.SIGKILL) })

	if exit := proc.Wait(); !exit.Success {
		t.Fatalf("expected leader to exit cleanly, got %s", exit)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill after Wait: %v", err)
	}
	if err := unix.Kill(leftover, 0); err != nil {
		t.Fatalf("Kill after Wait signalled the old process group: %v", err)
	}
}

func TestExecSpawnerMissingBinary(t *testing.T) {
	_, err := supervisor.ExecSpawner{}.Spawn("monistord-does-not-exist")
	if err == nil || !strings.Contains(err.Error(), "monistord-does-not-exist") {
		t.Fatalf("expected locate error, got %v", err)
	}
}

package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"monistor/internal/daemon"
	"monistor/internal/daemonctl"
	"monistor/internal/ipc"
	"monistor/internal/logging"
	"monistor/internal/testsupport"
)

func TestLaunchArgs(t *testing.T) {
	got := daemonctl.LaunchOptions{ConfigPath: " /etc/monistor.toml ", SocketPath: "/run/m.sock", LogLevel: "raw"}.Args()
	want := []string{"run", "--config", "/etc/monistor.toml", "--socket", "/run/m.sock", "--log-level", "raw"}
	if !slices.Equal(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}
	if got := (daemonctl.LaunchOptions{}).Args(); !slices.Equal(got, []string{"run"}) {
		t.Fatalf("expected bare run, got %v", got)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestOfflineDaemonHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	alive, pid, err := daemonctl.ProcessInfo(cfg.SocketPath())
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected offline daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}
	if err := daemonctl.WaitForShutdown(cfg.SocketPath(), 100*time.Millisecond); err != nil {
		t.Fatalf("expected immediate shutdown success, got %v", err)
	}
	if _, err := daemonctl.StopAndTerminate(cfg, 100*time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if _, err := daemonctl.WaitForClient(cfg.SocketPath(), 50*time.Millisecond); err == nil {
		t.Fatal("expected WaitForClient to time out")
	}
}

func TestForceKillProcess(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "monistor.pid")

	t.Run("refuses current process", func(t *testing.T) {
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			t.Fatalf("write pid: %v", err)
		}
		if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil || !strings.Contains(err.Error(), "refusing") {
			t.Fatalf("expected refusal, got %v", err)
		}
	})

	t.Run("requires a pid", func(t *testing.T) {
		if _, err := daemonctl.ForceKillProcess(filepath.Join(dir, "absent.pid"), "", 0); err == nil {
			t.Fatal("expected error without pid")
		}
	})

	t.Run("kills process and cleans files", func(t *testing.T) {
		if _, err := exec.LookPath("sleep"); err != nil {
			t.Skip("sleep not available")
		}
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			t.Fatalf("start sleep: %v", err)
		}
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644); err != nil {
			t.Fatalf("write pid: %v", err)
		}
		socket := filepath.Join(dir, "stale.sock")
		if err := os.WriteFile(socket, nil, 0o644); err != nil {
			t.Fatalf("write socket placeholder: %v", err)
		}

		killed, err := daemonctl.ForceKillProcess(pidPath, socket, 0)
		if err != nil {
			t.Fatalf("ForceKillProcess: %v", err)
		}
		if killed != cmd.Process.Pid {
			t.Fatalf("killed pid %d, want %d", killed, cmd.Process.Pid)
		}
		if err := cmd.Wait(); err == nil {
			t.Fatal("expected sleep to die from SIGKILL")
		}
		for _, p := range []string{pidPath, socket} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Fatalf("expected %s removed, got %v", p, err)
			}
		}
	})
}

func TestEnsureStartedFindsRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryDisabled())
	cfg.Daemon.AutoEnable = false
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Options{Spawner: testsupport.NewFakeSpawner()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	shutdown := make(chan struct{})
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop(), func() { close(shutdown) })
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	res, err := daemonctl.EnsureStarted(cfg.SocketPath(), "/nonexistent/monistor", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if res.State != daemonctl.StartStateAlreadyRunning || res.PID != os.Getpid() {
		t.Fatalf("unexpected start result %+v", res)
	}

	alive, pid, err := daemonctl.ProcessInfo(cfg.SocketPath())
	if err != nil || !alive || pid != os.Getpid() {
		t.Fatalf("expected live daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}

	go func() {
		<-shutdown
		srv.Close()
	}()
	result, err := daemonctl.StopAndTerminate(cfg, 2*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.StopAcknowledged || result.ForcedKill {
		t.Fatalf("expected graceful stop, got %+v", result)
	}
}

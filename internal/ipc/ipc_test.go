package ipc_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"monistor/internal/bridge"
	"monistor/internal/daemon"
	"monistor/internal/ipc"
	"monistor/internal/logging"
	"monistor/internal/testsupport"
)

func startServer(t *testing.T, d *daemon.Daemon, socket string, shutdown func()) *ipc.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop(), shutdown)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFastTiming())
	cfg.Daemon.AutoEnable = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenHistory(t, cfg)
	spawner := testsupport.NewFakeSpawner()
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Options{Session: "ipc-test", Spawner: spawner, History: store})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	shutdown := make(chan struct{})
	client := startServer(t, d, cfg.SocketPath(), func() { close(shutdown) })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Enabled {
		t.Fatalf("expected running daemon with supervision disabled, got %+v", status)
	}
	if status.SessionID != "ipc-test" || status.LogPath != cfg.LogPath() {
		t.Fatalf("unexpected status identity %+v", status)
	}

	enableResp, err := client.Enable()
	if err != nil {
		t.Fatalf("Enable RPC failed: %v", err)
	}
	if !enableResp.Enabled {
		t.Fatalf("expected Enabled=true, message=%s", enableResp.Message)
	}

	deadline := time.Now().Add(2 * time.Second)
	for spawner.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Supervisor == nil || status.Supervisor.State != "running" || status.Supervisor.PID != spawner.Last().PID() {
		t.Fatalf("expected running supervisor, got %+v", status.Supervisor)
	}
	if status.Subscriptions != 2 || status.Bridge.Subscriptions != 2 {
		t.Fatalf("expected two subscriptions, got %d/%d", status.Subscriptions, status.Bridge.Subscriptions)
	}

	if _, err := client.Notify("display-change-confirmed", nil); err != nil {
		t.Fatalf("Notify display change: %v", err)
	}
	next, err := client.NextCommand(time.Second)
	if err != nil {
		t.Fatalf("NextCommand failed: %v", err)
	}
	if !next.Available || next.Command.Kind != bridge.CommandCompleteDisplayChange || !next.Command.Accept {
		t.Fatalf("expected accept command, got %+v", next)
	}

	if _, err := client.Notify("modal-opened", []string{"keep-settings"}); err != nil {
		t.Fatalf("Notify modal: %v", err)
	}
	next, err = client.NextCommand(time.Second)
	if err != nil {
		t.Fatalf("NextCommand failed: %v", err)
	}
	if !next.Available || next.Command.Kind != bridge.CommandCloseModal || next.Command.ModalID != "keep-settings" {
		t.Fatalf("expected close command, got %+v", next)
	}

	empty, err := client.NextCommand(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("NextCommand failed: %v", err)
	}
	if empty.Available {
		t.Fatalf("expected empty queue, got %+v", empty.Command)
	}

	if _, err := client.Notify("bogus", nil); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown event error, got %v", err)
	}

	if err := os.WriteFile(cfg.LogPath(), []byte("a INFO one\nb RAW two\nc RAW three\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	tail, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 5, Contains: " RAW "})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(tail.Lines) != 2 || tail.Lines[1] != "c RAW three" {
		t.Fatalf("unexpected log tail %#v", tail.Lines)
	}

	disableResp, err := client.Disable()
	if err != nil {
		t.Fatalf("Disable RPC failed: %v", err)
	}
	if !disableResp.Disabled {
		t.Fatalf("expected Disabled=true, message=%s", disableResp.Message)
	}
	if !spawner.Last().Killed() {
		t.Fatal("expected Disable to kill the companion")
	}

	deadline = time.Now().Add(2 * time.Second)
	var entries []ipc.HistoryEntry
	for time.Now().Before(deadline) {
		resp, err := client.History(0)
		if err != nil {
			t.Fatalf("History RPC failed: %v", err)
		}
		entries = resp.Entries
		if len(entries) > 0 && entries[0].Kind == "stopped" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	var sawClose bool
	for _, e := range entries {
		if e.Source == "watchdog" && e.Kind == "modal_closed" && e.Detail == "keep-settings" {
			sawClose = true
		}
	}
	if !sawClose {
		t.Fatalf("expected modal_closed in history, got %+v", entries)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notifyResp.Sent || !strings.Contains(notifyResp.Message, "ntfy_topic") {
		t.Fatalf("expected disabled notifier message, got %+v", notifyResp)
	}

	shutdownResp, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if !shutdownResp.Stopping {
		t.Fatal("expected Stopping=true")
	}
	select {
	case <-shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func TestIPCReportsStoppedDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryDisabled())
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Options{Spawner: testsupport.NewFakeSpawner()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	client := startServer(t, d, cfg.SocketPath(), nil)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running || status.Supervisor != nil {
		t.Fatalf("expected stopped daemon, got %+v", status)
	}

	resp, err := client.Enable()
	if err != nil {
		t.Fatalf("Enable RPC failed: %v", err)
	}
	if resp.Enabled || !strings.Contains(resp.Message, "not running") {
		t.Fatalf("expected not running message, got %+v", resp)
	}
	if _, err := client.History(10); err == nil || !strings.Contains(err.Error(), "history disabled") {
		t.Fatalf("expected history disabled error, got %v", err)
	}
}

package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"midisession/internal/daemon"
	"midisession/internal/daemonctl"
	"midisession/internal/ipc"
	"midisession/internal/logging"
	"midisession/internal/testsupport"
)

func TestProcessInfoWithoutDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "absent.sock")
	alive, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d", alive, pid)
	}
	if err := daemonctl.WaitForShutdown(socket, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(cfg, cfg.SocketPath(), time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "midisessiond.pid")
	if err := os.WriteFile(pidPath, []byte("\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	_, err := daemonctl.ForceKillProcess(pidPath, "", os.Getpid())
	if err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Daemon.Running {
		t.Fatal("expected daemon to be reported as not running")
	}
	if len(snap.Checks) == 0 || snap.Checks[0].Label != "Daemon" || snap.Checks[0].Severity != "warn" {
		t.Fatalf("unexpected checks %#v", snap.Checks)
	}
	var sawState bool
	for _, line := range snap.Checks {
		if line.Label == "State directory" {
			sawState = true
			if line.Severity != "error" {
				t.Fatalf("missing state dir should be an error, got %#v", line)
			}
		}
	}
	if !sawState {
		t.Fatal("expected state directory check")
	}
}

func TestEnsureStartedAgainstRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, err := daemon.New(cfg, testsupport.NewSystem(t), nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop(), cancel)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	// The process is up but its session is stopped.
	result, err := daemonctl.EnsureStarted(cfg.SocketPath(), "/nonexistent", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateStarted || result.Launched {
		t.Fatalf("unexpected result %#v", result)
	}

	result, err = daemonctl.EnsureStarted(cfg.SocketPath(), "/nonexistent", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted again: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("expected already running, got %#v", result)
	}

	alive, pid, err := daemonctl.ProcessInfo(cfg.SocketPath())
	if err != nil || !alive || pid != os.Getpid() {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snap.Daemon.Running || snap.Checks[0].Severity != "ok" {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
}

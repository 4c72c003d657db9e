package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "1 virtual inputs")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, env.cfg.Client.Name)

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var payload struct {
		Daemon struct {
			Running   bool `json:"running"`
			Resources int  `json:"resources"`
		} `json:"daemon"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !payload.Daemon.Running || payload.Daemon.Resources != 1 {
		t.Fatalf("unexpected status payload %+v", payload)
	}
}

func TestEndpointsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"endpoints"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	requireContains(t, out, "Keyboard Keys")
	requireContains(t, out, "source")

	out, _, err = runCLI(t, []string{"endpoints", "--owned"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("endpoints --owned: %v", err)
	}
	requireNotContains(t, out, "Keyboard Keys")
	requireContains(t, out, "destination")

	out, _, err = runCLI(t, []string{"endpoints", "--unowned", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("endpoints --unowned: %v", err)
	}
	var endpoints []struct {
		DisplayName string `json:"display_name"`
		Owned       bool   `json:"owned"`
	}
	if err := json.Unmarshal([]byte(out), &endpoints); err != nil {
		t.Fatalf("decode endpoints: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].DisplayName != "Keyboard Keys" || endpoints[0].Owned {
		t.Fatalf("unexpected endpoints %+v", endpoints)
	}

	if _, _, err := runCLI(t, []string{"endpoints", "--owned", "--unowned"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected conflicting flags to fail")
	}
}

func TestResourcesAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"resources"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	requireContains(t, out, "virtual_input")
	requireContains(t, out, "sink")

	if _, _, err := runCLI(t, []string{"remove", "virtual_input"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected remove without tag or --all to fail")
	}
	if _, _, err := runCLI(t, []string{"remove", "widget", "sink"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown kind to fail")
	}

	out, _, err = runCLI(t, []string{"remove", "virtual_input", "sink"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, out, "Removed 1 virtual_input")

	out, _, err = runCLI(t, []string{"resources"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resources after remove: %v", err)
	}
	requireContains(t, out, "No managed resources")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestDaemonCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.sock")

	_, _, err := runCLI(t, []string{"resources"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "midisession start") {
		t.Fatalf("expected start hint, got %v", err)
	}

	out, _, err := runCLI(t, []string{"stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestLocalTopologyCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"devices"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	// The CLI session runs against its own in-memory system.
	requireContains(t, out, "No MIDI devices found")

	out, _, err = runCLI(t, []string{"watch", "--duration", "100ms"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "Watching 0 devices")

	if _, _, err := runCLI(t, []string{"thru", "list"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected thru list without --owner to fail")
	}
	out, _, err = runCLI(t, []string{"thru", "clear", "--owner", "com.example.test"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("thru clear: %v", err)
	}
	requireContains(t, out, "Removed 0 persistent thru connection(s)")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.cfg.LogPath(), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

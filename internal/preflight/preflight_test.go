package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"midisession/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDeviceNode(t *testing.T) {
	t.Run("missing node", func(t *testing.T) {
		if r := CheckDeviceNode("seq", filepath.Join(t.TempDir(), "seq")); r.Passed {
			t.Fatal("expected failure for missing node")
		}
	})
	t.Run("regular file", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "seq")
		if err := os.WriteFile(f, nil, 0o666); err != nil {
			t.Fatal(err)
		}
		if r := CheckDeviceNode("seq", f); r.Passed {
			t.Fatal("expected failure for a regular file")
		}
	})
	t.Run("character device", func(t *testing.T) {
		if r := CheckDeviceNode("null", "/dev/null"); !r.Passed {
			t.Fatalf("expected /dev/null to pass, got: %s", r.Detail)
		}
	})
}

func TestCheckListenAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if r := CheckListenAddress(context.Background(), "metrics", ln.Addr().String()); r.Passed {
		t.Fatal("expected failure for an address already in use")
	}
	if r := CheckListenAddress(context.Background(), "metrics", "127.0.0.1:0"); !r.Passed {
		t.Fatalf("expected ephemeral port to be available, got: %s", r.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MemoryBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Transport.Backend = config.BackendMemory

	results := RunAll(context.Background(), &cfg)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_GoMIDIChecksSequencer(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Transport.Backend = config.BackendGoMIDI
	cfg.Metrics.Enabled = true
	cfg.Metrics.Bind = "127.0.0.1:0"

	results := RunAll(context.Background(), &cfg)
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"ALSA sequencer", "Metrics endpoint"} {
		if !names[want] {
			t.Fatalf("expected %q check in %+v", want, results)
		}
	}
}

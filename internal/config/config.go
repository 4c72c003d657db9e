package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Client contains the identity the session registers with the host transport.
type Client struct {
	Name         string `toml:"name"`
	Model        string `toml:"model"`
	Manufacturer string `toml:"manufacturer"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Transport selects and tunes the MIDI backend.
type Transport struct {
	Backend        string `toml:"backend"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	Hotplug        bool   `toml:"hotplug"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics controls the Prometheus endpoint served by the daemon.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Notifications configures ntfy push alerts for device changes.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	DeviceChanges  bool   `toml:"device_changes"`
}

// VirtualPort declares a virtual input or output the daemon publishes.
type VirtualPort struct {
	Tag       string `toml:"tag"`
	Name      string `toml:"name"`
	PersistID bool   `toml:"persist_id"`
}

// Connection declares an input or output connection and its match criteria.
type Connection struct {
	Tag          string   `toml:"tag"`
	Mode         string   `toml:"mode"`
	UniqueIDs    []int32  `toml:"unique_ids"`
	Names        []string `toml:"names"`
	DisplayNames []string `toml:"display_names"`
	ExcludeNames []string `toml:"exclude_names"`
	IncludeOwned bool     `toml:"include_owned"`
}

// ThruConnection declares a transport-level relay between endpoints named by
// their display names.
type ThruConnection struct {
	Tag             string   `toml:"tag"`
	Outputs         []string `toml:"outputs"`
	Inputs          []string `toml:"inputs"`
	OwnerID         string   `toml:"owner_id"`
	FilterSysEx     bool     `toml:"filter_sysex"`
	FilterBeatClock bool     `toml:"filter_beat_clock"`
	FilterMTC       bool     `toml:"filter_mtc"`
}

// Persistent reports whether the relay outlives the session.
func (t ThruConnection) Persistent() bool {
	return strings.TrimSpace(t.OwnerID) != ""
}

// Config encapsulates all configuration values for midisession.
//
// Configuration sections:
//   - Client: name, model and manufacturer registered with the transport
//   - Paths: state directory (id store, lock, socket) and log directory
//   - Transport: backend selection, polling interval, udev hotplug
//   - Logging: log format and level
//   - Metrics: Prometheus endpoint
//   - Notifications: ntfy alerts when MIDI devices come and go
//   - VirtualInputs/VirtualOutputs, InputConnections/OutputConnections,
//     ThruConnections: resources the daemon declares at startup
type Config struct {
	Client            Client           `toml:"client"`
	Paths             Paths            `toml:"paths"`
	Transport         Transport        `toml:"transport"`
	Logging           Logging          `toml:"logging"`
	Metrics           Metrics          `toml:"metrics"`
	Notifications     Notifications    `toml:"notifications"`
	VirtualInputs     []VirtualPort    `toml:"virtual_inputs"`
	VirtualOutputs    []VirtualPort    `toml:"virtual_outputs"`
	InputConnections  []Connection     `toml:"input_connections"`
	OutputConnections []Connection     `toml:"output_connections"`
	ThruConnections   []ThruConnection `toml:"thru_connections"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("midisession.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath is the daemon log file. Empty when no log directory is set.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "midisession.log")
}

// SocketPath is the IPC socket location inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "midisession.sock")
}

// PIDPath is where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "midisessiond.pid")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "midisessiond.lock")
}

// IDStorePath is the SQLite database holding persisted unique ids.
func (c *Config) IDStorePath() string {
	return filepath.Join(c.Paths.StateDir, "ids.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

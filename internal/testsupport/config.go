package testsupport

import (
	"path/filepath"
	"testing"

	"midisession/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The memory backend is selected and metrics bind to an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Transport.Backend = config.BackendMemory
	cfgVal.Transport.Hotplug = false
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithClientName overrides the registered client name.
func WithClientName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Client.Name = name
	}
}

// WithVirtualInput declares a virtual input whose id is persisted.
func WithVirtualInput(tag, name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.VirtualInputs = append(b.cfg.VirtualInputs, config.VirtualPort{Tag: tag, Name: name, PersistID: true})
	}
}

// WithVirtualOutput declares a virtual output whose id is persisted.
func WithVirtualOutput(tag, name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.VirtualOutputs = append(b.cfg.VirtualOutputs, config.VirtualPort{Tag: tag, Name: name, PersistID: true})
	}
}

// WithInputConnection declares an input connection matching names.
func WithInputConnection(tag string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.InputConnections = append(b.cfg.InputConnections, config.Connection{Tag: tag, Mode: config.ModeCriteria, Names: names})
	}
}

// WithMetrics enables the metrics endpoint.
func WithMetrics() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Enabled = true
	}
}

// WithNtfyTopic points device alerts at url.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

package manager

import "log/slog"

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the base logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.baseLogger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithModel sets the model property written onto created virtual ports.
func WithModel(model string) Option {
	return func(m *Manager) {
		m.model = model
	}
}

// WithManufacturer sets the manufacturer property written onto created
// virtual ports.
func WithManufacturer(manufacturer string) Option {
	return func(m *Manager) {
		m.manufacturer = manufacturer
	}
}

// WithSessionID overrides the generated session id used for log correlation.
func WithSessionID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.sessionID = id
		}
	}
}

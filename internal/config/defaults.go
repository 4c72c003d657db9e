package config

const (
	defaultConfigPath          = "~/.config/midisession/config.toml"
	defaultStateDir            = "~/.local/share/midisession"
	defaultLogDir              = "~/.local/share/midisession/logs"
	defaultClientName          = "midisession"
	defaultModel               = "midisession"
	defaultManufacturer        = "midisession"
	defaultBackend             = BackendMemory
	defaultPollIntervalMS      = 1000
	minPollIntervalMS          = 50
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMetricsBind         = "127.0.0.1:9465"
	defaultConnectionMode      = ModeCriteria
	defaultNtfyTimeoutSeconds  = 10
	maxThruEndpointsPerSide    = 8
	environmentBackendOverride = "MIDISESSION_BACKEND"
)

// Transport backends.
const (
	BackendMemory = "memory"
	BackendGoMIDI = "gomidi"
)

// Connection modes.
const (
	ModeCriteria = "criteria"
	ModeAll      = "all"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Client: Client{
			Name:         defaultClientName,
			Model:        defaultModel,
			Manufacturer: defaultManufacturer,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Transport: Transport{
			Backend:        defaultBackend,
			PollIntervalMS: defaultPollIntervalMS,
			Hotplug:        true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: false,
			Bind:    defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeoutSeconds,
			DeviceChanges:  true,
		},
	}
}

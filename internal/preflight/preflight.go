package preflight

import (
	"context"

	"midisession/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Transport.Backend == config.BackendGoMIDI {
		results = append(results, CheckDeviceNode("ALSA sequencer", SequencerDevice))
	}

	if cfg.Metrics.Enabled {
		results = append(results, CheckListenAddress(ctx, "Metrics endpoint", cfg.Metrics.Bind))
	}

	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

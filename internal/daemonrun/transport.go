package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"midisession/internal/config"
	"midisession/internal/transport"
	"midisession/internal/transport/gomiditransport"
	"midisession/internal/transport/memtransport"
)

// ErrNoDriver is returned when the gomidi backend is selected but no driver
// was registered at build time.
var ErrNoDriver = errors.New("no gomidi driver registered; build with cgo to include rtmidi")

// OpenTransport builds the backend selected by cfg. gomidi drivers register
// themselves through blank imports in the binaries.
func OpenTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport.Backend {
	case config.BackendMemory:
		return memtransport.NewSystem(), nil
	case config.BackendGoMIDI:
		drv := drivers.Get()
		if drv == nil {
			return nil, ErrNoDriver
		}
		return gomiditransport.New(drv,
			gomiditransport.WithLogger(logger),
			gomiditransport.WithPollInterval(time.Duration(cfg.Transport.PollIntervalMS)*time.Millisecond),
		)
	}
	return nil, fmt.Errorf("unknown transport backend %q", cfg.Transport.Backend)
}

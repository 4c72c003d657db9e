package hotplug

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

// Monitor listens for udev netlink events on the sound subsystem and
// triggers a rescan of the target transport.
type Monitor struct {
	target transport.Rescanner
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New returns a monitor for target. A nil target yields a nil monitor, on
// which every method is a no-op.
func New(target transport.Rescanner, logger *slog.Logger) *Monitor {
	if target == nil {
		return nil
	}
	return &Monitor{
		target: target,
		logger: logging.NewComponentLogger(logger, "hotplug"),
	}
}

// Start begins listening. Failure to open the netlink socket is logged and
// not returned; the transport keeps polling on its own.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; relying on polling", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "new MIDI devices appear after the next poll"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started", logging.String(logging.FieldEventType, "hotplug_monitor_started"))
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("hotplug monitor stopped", logging.String(logging.FieldEventType, "hotplug_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "device changes may only be seen by polling"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=sound with ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

// handleEvent rescans for sequencer and raw MIDI nodes; other sound devices
// (PCM, mixers) are ignored.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	node := deviceNode(uevent)
	if !isMIDINode(node) {
		m.logger.Debug("ignoring non-midi sound event",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("midi device change detected",
		logging.String(logging.FieldEventType, "hotplug_midi_change"),
		logging.String("device", node),
		logging.String("action", string(uevent.Action)),
	)
	if err := m.target.Rescan(); err != nil {
		logging.WarnWithContext(m.logger, "rescan after hotplug failed", "hotplug_rescan_failed",
			logging.Error(err),
			logging.String("device", node),
			logging.String(logging.FieldImpact, "the change is picked up on the next poll"),
		)
	}
}

// deviceNode gets the device name from a uevent, falling back to the last
// DEVPATH element.
func deviceNode(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/snd/" + parts[len(parts)-1]
}

func isMIDINode(node string) bool {
	base := node[strings.LastIndex(node, "/")+1:]
	return base == "seq" || strings.HasPrefix(base, "midiC")
}

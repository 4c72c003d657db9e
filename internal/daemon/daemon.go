package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"midisession/internal/config"
	"midisession/internal/hotplug"
	"midisession/internal/idstore"
	"midisession/internal/logging"
	"midisession/internal/manager"
	"midisession/internal/metrics"
	"midisession/internal/notifications"
	"midisession/internal/notify"
	"midisession/internal/transport"
)

const (
	recentNotificationLimit = 32
	alertTimeout            = 15 * time.Second
)

// Daemon owns one session manager and the surfaces around it.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	tr      transport.Transport
	ids     *idstore.Store
	metrics *metrics.Collector
	alerts  notifications.Service

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	session *manager.Manager
	hotplug *hotplug.Monitor
	http    *httpServer
	cancel  context.CancelFunc
	started time.Time

	running       atomic.Bool
	packetsIn     atomic.Uint64
	notifications atomic.Uint64

	recentMu sync.Mutex
	recent   []string

	alertsWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running             bool      `json:"running"`
	PID                 int       `json:"pid"`
	SessionID           string    `json:"session_id"`
	ClientName          string    `json:"client_name"`
	Backend             string    `json:"backend"`
	StartedAt           time.Time `json:"started_at"`
	LockFilePath        string    `json:"lock_path"`
	IDStorePath         string    `json:"id_store_path"`
	Devices             int       `json:"devices"`
	Sources             int       `json:"sources"`
	Destinations        int       `json:"destinations"`
	Resources           int       `json:"resources"`
	PacketsReceived     uint64    `json:"packets_received"`
	Notifications       uint64    `json:"notifications"`
	RecentNotifications []string  `json:"recent_notifications"`
	HotplugActive       bool      `json:"hotplug_active"`
}

// New constructs a daemon around an already opened transport and id store.
// The daemon closes both in Close.
func New(cfg *config.Config, tr transport.Transport, ids *idstore.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || tr == nil || logger == nil {
		return nil, errors.New("daemon requires config, transport, and logger")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		tr:       tr,
		ids:      ids,
		metrics:  metrics.New(),
		alerts:   notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Metrics exposes the collector the session reports into.
func (d *Daemon) Metrics() *metrics.Collector { return d.metrics }

// Start acquires the daemon lock, starts a fresh session, declares the
// configured resources and brings up hotplug and HTTP surfaces.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another midisession daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	session := manager.New(d.tr, d.cfg.Client.Name,
		manager.WithLogger(d.logger),
		manager.WithMetrics(d.metrics),
		manager.WithModel(d.cfg.Client.Model),
		manager.WithManufacturer(d.cfg.Client.Manufacturer),
	)
	session.SetNotificationHandler(d.onNotification)
	if err := session.Start(runCtx); err != nil {
		cancel()
		_ = session.Close(context.Background())
		_ = d.lock.Unlock()
		return fmt.Errorf("start session: %w", err)
	}

	if err := d.declare(runCtx, session); err != nil {
		logging.WarnWithContext(d.logger, "some declared resources failed", "declare_resources_partial",
			logging.Error(err),
			logging.String(logging.FieldImpact, "failed resources stay registered and bind when their endpoints appear"),
		)
	}

	if d.cfg.Transport.Hotplug {
		if rescanner, ok := d.tr.(transport.Rescanner); ok {
			d.hotplug = hotplug.New(rescanner, d.logger)
			if err := d.hotplug.Start(runCtx); err != nil {
				d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
			}
		}
	}

	if d.cfg.Metrics.Enabled {
		d.http = newHTTPServer(d.cfg.Metrics.Bind, d, d.logger)
		if err := d.http.start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "metrics endpoint unavailable", "metrics_listen_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "choose a free metrics.bind address"),
			)
			d.http = nil
		}
	}

	d.session = session
	d.cancel = cancel
	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("midisession daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldSessionID, session.SessionID()),
		logging.String("backend", d.cfg.Transport.Backend),
	)
	return nil
}

// Stop tears the session down and releases the daemon lock. Persistent
// relays survive.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.http.stop()
	d.http = nil
	d.hotplug.Stop()
	d.hotplug = nil

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.session.Close(shutdownCtx); err != nil {
		d.logger.Warn("session close reported errors", logging.Error(err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.alertsWG.Wait()
	d.logger.Info("midisession daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if closer, ok := d.tr.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if d.ids != nil {
		errs = append(errs, d.ids.Close())
	}
	return errors.Join(errs...)
}

// Session returns the running session manager, or nil when stopped.
func (d *Daemon) Session() *manager.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}
	return d.session
}

// Status returns a snapshot of daemon and session state.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		ClientName:      d.cfg.Client.Name,
		Backend:         d.cfg.Transport.Backend,
		LockFilePath:    d.lockPath,
		PacketsReceived: d.packetsIn.Load(),
		Notifications:   d.notifications.Load(),
	}
	if d.ids != nil {
		status.IDStorePath = d.ids.Path()
	}
	d.recentMu.Lock()
	status.RecentNotifications = append([]string(nil), d.recent...)
	d.recentMu.Unlock()

	d.mu.Lock()
	session, hp, started := d.session, d.hotplug, d.started
	d.mu.Unlock()
	if !status.Running || session == nil {
		return status
	}
	if err := session.Sync(ctx); err != nil {
		d.logger.Debug("status sync failed", logging.Error(err))
	}
	snap := session.Snapshot()
	status.SessionID = session.SessionID()
	status.StartedAt = started
	status.Devices = len(snap.Devices)
	status.Sources = len(snap.Outputs)
	status.Destinations = len(snap.Inputs)
	status.Resources = len(session.Resources())
	status.HotplugActive = hp.Running()
	return status
}

// Endpoints returns the current endpoints of the running session.
func (d *Daemon) Endpoints() ([]transport.EndpointRecord, map[transport.Handle]bool, error) {
	session := d.Session()
	if session == nil {
		return nil, nil, errors.New("daemon not running")
	}
	snap := session.Snapshot()
	owned := make(map[transport.Handle]bool, len(snap.InputsOwned)+len(snap.OutputsOwned))
	for _, ep := range snap.InputsOwned {
		owned[ep.Handle] = true
	}
	for _, ep := range snap.OutputsOwned {
		owned[ep.Handle] = true
	}
	out := make([]transport.EndpointRecord, 0, len(snap.Inputs)+len(snap.Outputs))
	out = append(out, snap.Outputs...)
	out = append(out, snap.Inputs...)
	return out, owned, nil
}

// Resources lists the managed resources of the running session.
func (d *Daemon) Resources() ([]manager.ResourceInfo, error) {
	session := d.Session()
	if session == nil {
		return nil, errors.New("daemon not running")
	}
	return session.Resources(), nil
}

// Remove tears down one managed resource, or every resource of kind when
// tag is empty.
func (d *Daemon) Remove(ctx context.Context, kind manager.ResourceKind, tag string) error {
	session := d.Session()
	if session == nil {
		return errors.New("daemon not running")
	}
	target := manager.All()
	if tag != "" {
		target = manager.Tag(tag)
	}
	return session.Remove(ctx, kind, target)
}

func (d *Daemon) onNotification(n notify.Notification) {
	d.notifications.Add(1)
	d.logger.Info("topology notification",
		logging.String(logging.FieldNotification, n.Kind()),
		logging.String("detail", fmt.Sprint(n)),
	)
	line := time.Now().Format(time.RFC3339) + " " + fmt.Sprint(n)
	d.recentMu.Lock()
	d.recent = append(d.recent, line)
	if len(d.recent) > recentNotificationLimit {
		d.recent = d.recent[len(d.recent)-recentNotificationLimit:]
	}
	d.recentMu.Unlock()

	d.alert(n)
}

// ErrAlertsDisabled is returned by TestNotification when no ntfy topic is
// configured.
var ErrAlertsDisabled = errors.New("ntfy notifications are not configured")

// TestNotification sends a test alert.
func (d *Daemon) TestNotification(ctx context.Context) error {
	if !notifications.Enabled(d.alerts) {
		return ErrAlertsDisabled
	}
	return d.alerts.TestNotification(ctx)
}

// alert forwards device arrivals, departures and driver errors to ntfy.
// Delivery runs off the notification path.
func (d *Daemon) alert(n notify.Notification) {
	if !d.cfg.Notifications.DeviceChanges || !notifications.Enabled(d.alerts) {
		return
	}

	var send func(context.Context) error
	switch ev := n.(type) {
	case notify.Added:
		if !isDevice(ev.Child.Type) {
			return
		}
		child := ev.Child
		send = func(ctx context.Context) error {
			manufacturer, _ := d.tr.StringProperty(child.Handle, transport.PropManufacturer)
			return d.alerts.NotifyDeviceConnected(ctx, deviceLabel(child), manufacturer)
		}
	case notify.Removed:
		if !isDevice(ev.Child.Type) {
			return
		}
		child := ev.Child
		send = func(ctx context.Context) error {
			return d.alerts.NotifyDeviceDisconnected(ctx, deviceLabel(child))
		}
	case notify.DriverError:
		send = func(ctx context.Context) error {
			return d.alerts.NotifyDriverError(ctx, deviceLabel(ev.Device), ev.Err)
		}
	default:
		return
	}

	d.alertsWG.Add(1)
	go func() {
		defer d.alertsWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			logging.WarnWithContext(d.logger, "device alert not delivered", "ntfy_send_failed",
				logging.String(logging.FieldNotification, n.Kind()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			)
		}
	}()
}

func isDevice(t transport.ObjectType) bool {
	return t == transport.ObjectDevice || t == transport.ObjectExternalDevice
}

func deviceLabel(o notify.ObjectSummary) string {
	if o.Name != "" {
		return o.Name
	}
	return o.String()
}

func (d *Daemon) countPacket(manager.Packet) {
	d.packetsIn.Add(1)
}

// LogPath is the daemon log file, or "" when logging only to stdout.
func (d *Daemon) LogPath() string { return d.cfg.LogPath() }

// MetricsAddr reports the bound metrics address, or "" when not serving.
func (d *Daemon) MetricsAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.http.Addr()
}

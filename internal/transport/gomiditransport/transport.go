package gomiditransport

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gitlab.com/gomidi/midi/v2/drivers"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

// Status codes reported by the backend.
const (
	StatusInvalidClient  int32 = -20830
	StatusInvalidPort    int32 = -20831
	StatusObjectNotFound int32 = -20832
	StatusUnknownKey     int32 = -20835
	StatusIDNotUnique    int32 = -20843
	StatusNotPermitted   int32 = -20844
)

// DefaultPollInterval is how often the driver is re-enumerated.
const DefaultPollInterval = 2 * time.Second

// VirtualDriver is implemented by drivers that can publish ports of their
// own, such as rtmididrv on ALSA and CoreMIDI hosts.
type VirtualDriver interface {
	OpenVirtualIn(name string) (drivers.In, error)
	OpenVirtualOut(name string) (drivers.Out, error)
}

// Transport adapts a gomidi driver to transport.Transport.
type Transport struct {
	drv      drivers.Driver
	virtual  VirtualDriver
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	// scanMu serializes rescans so notifications leave in order.
	scanMu sync.Mutex

	mu         sync.Mutex
	nextHandle transport.Handle
	devices    map[string]*device
	entities   map[transport.Handle]*device
	endpoints  map[transport.Handle]*endpoint
	byKey      map[portKey]transport.Handle
	ids        map[transport.UniqueID]transport.Handle
	clients    map[transport.Handle]*client
	ports      map[transport.Handle]*port
	relays     map[transport.Handle]*relay
	listeners  map[transport.Handle]func()

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type portKey struct {
	dir  transport.Direction
	name string
}

type device struct {
	rec    transport.DeviceRecord
	entity transport.EntityRecord
	refs   int
}

type endpoint struct {
	rec          transport.EndpointRecord
	key          portKey
	in           drivers.In
	out          drivers.Out
	model        string
	manufacturer string
	// owner is the client that published a virtual endpoint.
	owner   transport.Handle
	receive transport.ReceiveFunc
}

func (e *endpoint) virtual() bool { return e.owner != transport.NoHandle }

type client struct {
	handle transport.Handle
	name   string
	notify transport.NotifyFunc
}

type port struct {
	handle  transport.Handle
	client  transport.Handle
	name    string
	input   bool
	receive transport.ReceiveFunc
	sources map[transport.Handle]struct{}
}

type relay struct {
	handle transport.Handle
	spec   transport.RelaySpec
}

// Option configures a Transport.
type Option func(*Transport)

// WithClock replaces the wall clock driving the poll loop.
func WithClock(c clock.Clock) Option {
	return func(t *Transport) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithPollInterval sets how often the driver is re-enumerated.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New enumerates drv once and starts polling it. The driver is closed by
// Close.
func New(drv drivers.Driver, opts ...Option) (*Transport, error) {
	t := &Transport{
		drv:        drv,
		clock:      clock.New(),
		interval:   DefaultPollInterval,
		nextHandle: 1,
		devices:    make(map[string]*device),
		entities:   make(map[transport.Handle]*device),
		endpoints:  make(map[transport.Handle]*endpoint),
		byKey:      make(map[portKey]transport.Handle),
		ids:        make(map[transport.UniqueID]transport.Handle),
		clients:    make(map[transport.Handle]*client),
		ports:      make(map[transport.Handle]*port),
		relays:     make(map[transport.Handle]*relay),
		listeners:  make(map[transport.Handle]func()),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "gomidi")
	if v, ok := drv.(VirtualDriver); ok {
		t.virtual = v
	}
	if err := t.Rescan(); err != nil {
		return nil, err
	}
	go t.pollLoop()
	t.logger.Info("gomidi transport started",
		logging.String("driver", drv.String()),
		logging.Duration("poll_interval", t.interval),
		logging.Bool("virtual_ports", t.virtual != nil),
	)
	return t, nil
}

func (t *Transport) pollLoop() {
	defer close(t.done)
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if err := t.Rescan(); err != nil {
				logging.WarnWithContext(t.logger, "driver rescan failed", "gomidi_rescan_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that the MIDI subsystem is running"),
				)
			}
		}
	}
}

// Close stops polling, stops every listener, closes published virtual ports
// and closes the driver.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		<-t.done

		t.mu.Lock()
		stops := make([]func(), 0, len(t.listeners))
		for h, stop := range t.listeners {
			stops = append(stops, stop)
			delete(t.listeners, h)
		}
		var virtuals []*endpoint
		for _, ep := range t.endpoints {
			if ep.virtual() {
				virtuals = append(virtuals, ep)
			}
		}
		t.mu.Unlock()

		for _, stop := range stops {
			stop()
		}
		for _, ep := range virtuals {
			closeEndpoint(ep)
		}
		err = t.drv.Close()
	})
	return err
}

func (t *Transport) allocHandleLocked() transport.Handle {
	h := t.nextHandle
	t.nextHandle++
	return h
}

func (t *Transport) clientListLocked() []*client {
	out := make([]*client, 0, len(t.clients))
	for _, c := range t.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

// broadcast encodes notes and hands each buffer to every client callback in
// order. It must be called without t.mu held.
func broadcast(targets []*client, notes []transport.RawNotification) {
	for _, n := range notes {
		raw := transport.EncodeNotification(n)
		for _, c := range targets {
			if c.notify != nil {
				c.notify(raw)
			}
		}
	}
}

func closeEndpoint(ep *endpoint) {
	switch {
	case ep.in != nil && ep.in.IsOpen():
		_ = ep.in.Close()
	case ep.out != nil && ep.out.IsOpen():
		_ = ep.out.Close()
	}
}

func notFound(op string, h transport.Handle) error {
	return transport.Wrap(transport.ErrNotFound, "handle "+itoa(int64(h)), op, "", transport.Status(op, StatusObjectNotFound))
}

package memtransport

import (
	"fmt"
	"sort"
	"sync"

	"midisession/internal/transport"
)

// Status codes reported by the simulated host.
const (
	StatusInvalidClient  int32 = -10830
	StatusInvalidPort    int32 = -10831
	StatusObjectNotFound int32 = -10832
	StatusIDNotUnique    int32 = -10843
	StatusNotPermitted   int32 = -10844
)

const firstAssignedID transport.UniqueID = 0x10000

// System is an in-process MIDI host shared by any number of clients. It
// implements transport.Transport and adds hooks for driving topology changes
// and injecting failures.
type System struct {
	mu sync.Mutex

	nextHandle transport.Handle
	nextID     transport.UniqueID
	caps       transport.Capabilities

	devices   map[transport.Handle]*device
	entities  map[transport.Handle]*entity
	endpoints map[transport.Handle]*endpoint
	clients   map[transport.Handle]*client
	ports     map[transport.Handle]*port
	relays    map[transport.Handle]*relay

	failures map[string]error
	sent     map[transport.Handle][][]byte

	clientCreations int
	enumerations    int
	disposedPorts   []transport.Handle
}

type device struct {
	rec transport.DeviceRecord
}

type entity struct {
	rec transport.EntityRecord
}

type endpoint struct {
	rec          transport.EndpointRecord
	model        string
	manufacturer string
	owner        transport.Handle
	receive      transport.ReceiveFunc
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

// Option configures a System.
type Option func(*System)

// WithCapabilities overrides the relay capabilities reported by the system.
func WithCapabilities(caps transport.Capabilities) Option {
	return func(s *System) {
		s.caps = caps
	}
}

// NewSystem constructs an empty host.
func NewSystem(opts ...Option) *System {
	s := &System{
		nextHandle: 1,
		nextID:     firstAssignedID,
		caps:       transport.Capabilities{Relays: true, PersistentRelays: true},
		devices:    make(map[transport.Handle]*device),
		entities:   make(map[transport.Handle]*entity),
		endpoints:  make(map[transport.Handle]*endpoint),
		clients:    make(map[transport.Handle]*client),
		ports:      make(map[transport.Handle]*port),
		relays:     make(map[transport.Handle]*relay),
		failures:   make(map[string]error),
		sent:       make(map[transport.Handle][][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes every later call of the named operation (a Transport method
// name such as "ConnectSource") return err until ClearFailure is called.
func (s *System) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailure removes an injected failure.
func (s *System) ClearFailure(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

func (s *System) failureLocked(op string) error {
	if err, ok := s.failures[op]; ok && err != nil {
		return err
	}
	return nil
}

func (s *System) allocHandleLocked() transport.Handle {
	h := s.nextHandle
	s.nextHandle++
	return h
}

func (s *System) idInUseLocked(id transport.UniqueID) bool {
	if !id.Valid() {
		return true
	}
	for _, ep := range s.endpoints {
		if ep.rec.UniqueID == id {
			return true
		}
	}
	for _, d := range s.devices {
		if d.rec.UniqueID == id {
			return true
		}
	}
	for _, e := range s.entities {
		if e.rec.UniqueID == id {
			return true
		}
	}
	return false
}

func (s *System) allocIDLocked(hint transport.UniqueID) transport.UniqueID {
	if hint.Valid() && !s.idInUseLocked(hint) {
		return hint
	}
	for s.idInUseLocked(s.nextID) {
		s.nextID++
	}
	id := s.nextID
	s.nextID++
	return id
}

// AddDevice registers a device with a single entity and returns the device
// handle.
func (s *System) AddDevice(name, manufacturer, model string) transport.Handle {
	s.mu.Lock()
	dev := &device{rec: transport.DeviceRecord{
		Handle:       s.allocHandleLocked(),
		Name:         name,
		Manufacturer: manufacturer,
		Model:        model,
	}}
	dev.rec.UniqueID = s.allocIDLocked(transport.InvalidUniqueID)
	ent := &entity{rec: transport.EntityRecord{
		Handle: s.allocHandleLocked(),
		Name:   name,
		Device: dev.rec.Handle,
	}}
	ent.rec.UniqueID = s.allocIDLocked(transport.InvalidUniqueID)
	dev.rec.Entities = []transport.Handle{ent.rec.Handle}
	s.devices[dev.rec.Handle] = dev
	s.entities[ent.rec.Handle] = ent
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectAdded, Child: dev.rec.Handle, ChildType: transport.ObjectDevice, ParentType: transport.ObjectOther},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return dev.rec.Handle
}

// AddEndpoint attaches an endpoint to the first entity of dev. A zero id is
// assigned by the system; a colliding id is reassigned silently.
func (s *System) AddEndpoint(dev transport.Handle, name string, dir transport.Direction, id transport.UniqueID) (transport.Handle, error) {
	s.mu.Lock()
	d, ok := s.devices[dev]
	if !ok {
		s.mu.Unlock()
		return transport.NoHandle, transport.Status("AddEndpoint", StatusObjectNotFound)
	}
	var entityHandle transport.Handle
	if len(d.rec.Entities) > 0 {
		entityHandle = d.rec.Entities[0]
	}
	ep := &endpoint{
		rec: transport.EndpointRecord{
			Handle:      s.allocHandleLocked(),
			UniqueID:    s.allocIDLocked(id),
			Name:        name,
			DisplayName: d.rec.Name + " " + name,
			Direction:   dir,
			Entity:      entityHandle,
			Device:      dev,
		},
		model:        d.rec.Model,
		manufacturer: d.rec.Manufacturer,
	}
	s.endpoints[ep.rec.Handle] = ep
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectAdded, Parent: entityHandle, ParentType: transport.ObjectEntity, Child: ep.rec.Handle, ChildType: dir.ObjectType()},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return ep.rec.Handle, nil
}

// RemoveEndpoint unplugs an endpoint.
func (s *System) RemoveEndpoint(h transport.Handle) error {
	s.mu.Lock()
	ep, ok := s.endpoints[h]
	if !ok {
		s.mu.Unlock()
		return transport.Status("RemoveEndpoint", StatusObjectNotFound)
	}
	delete(s.endpoints, h)
	s.detachSourceLocked(h)
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectRemoved, Parent: ep.rec.Entity, ParentType: entityType(ep.rec.Entity), Child: h, ChildType: ep.rec.Direction.ObjectType()},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return nil
}

// RemoveDevice unplugs a device together with its entities and endpoints.
func (s *System) RemoveDevice(h transport.Handle) error {
	s.mu.Lock()
	d, ok := s.devices[h]
	if !ok {
		s.mu.Unlock()
		return transport.Status("RemoveDevice", StatusObjectNotFound)
	}
	delete(s.devices, h)
	for _, eh := range d.rec.Entities {
		delete(s.entities, eh)
	}
	for eh, ep := range s.endpoints {
		if ep.rec.Device == h {
			delete(s.endpoints, eh)
			s.detachSourceLocked(eh)
		}
	}
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectRemoved, Child: h, ChildType: transport.ObjectDevice, ParentType: transport.ObjectOther},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return nil
}

// Rename changes an object's name and reports the property change.
func (s *System) Rename(h transport.Handle, name string) error {
	s.mu.Lock()
	var objType transport.ObjectType
	switch {
	case s.endpoints[h] != nil:
		s.endpoints[h].rec.Name = name
		objType = s.endpoints[h].rec.Direction.ObjectType()
	case s.devices[h] != nil:
		s.devices[h].rec.Name = name
		objType = transport.ObjectDevice
	default:
		s.mu.Unlock()
		return transport.Status("Rename", StatusObjectNotFound)
	}
	s.mu.Unlock()

	s.broadcast(transport.RawNotification{Kind: transport.MsgPropertyChanged, Object: h, ObjectType: objType, Property: transport.PropName})
	return nil
}

// ReportDriverError emits an I/O error notification for dev.
func (s *System) ReportDriverError(dev transport.Handle, code int32) {
	s.broadcast(transport.RawNotification{Kind: transport.MsgIOError, Device: dev, ErrorCode: code})
}

// PostRaw delivers an arbitrary raw buffer to every client.
func (s *System) PostRaw(raw []byte) {
	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, c := range targets {
		c.enqueue(append([]byte(nil), raw...))
	}
}

// Inject delivers data as if it arrived from source.
func (s *System) Inject(source transport.Handle, data []byte) {
	s.mu.Lock()
	deliveries := s.routeLocked(source, data, 0)
	s.mu.Unlock()
	for _, d := range deliveries {
		d()
	}
}

// Sent returns the payloads delivered to a non-virtual destination.
func (s *System) Sent(dest transport.Handle) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent[dest]))
	copy(out, s.sent[dest])
	return out
}

// ClientCreations reports how many clients were ever created.
func (s *System) ClientCreations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCreations
}

// LiveClients reports the number of clients not yet disposed.
func (s *System) LiveClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Enumerations reports how many times endpoints were enumerated.
func (s *System) Enumerations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enumerations
}

// PortAlive reports whether a port or virtual endpoint handle still exists.
func (s *System) PortAlive(h transport.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ports[h]; ok {
		return true
	}
	_, ok := s.endpoints[h]
	return ok
}

// DisposedPorts lists port handles in disposal order.
func (s *System) DisposedPorts() []transport.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Handle(nil), s.disposedPorts...)
}

// ConnectedSources lists the sources an input port is connected to.
func (s *System) ConnectedSources(p transport.Handle) []transport.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.ports[p]
	if !ok {
		return nil
	}
	out := make([]transport.Handle, 0, len(pt.sources))
	for h := range pt.sources {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RelayCount reports live relays, persistent or not.
func (s *System) RelayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.relays)
}

// Flush blocks until every notification posted so far has been handed to
// its client callback.
func (s *System) Flush() {
	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, c := range targets {
		c.flush()
	}
}

func (s *System) detachSourceLocked(h transport.Handle) {
	for _, p := range s.ports {
		delete(p.sources, h)
	}
}

// routeLocked collects receive callbacks for data leaving source. depth
// bounds relay chains.
func (s *System) routeLocked(source transport.Handle, data []byte, depth int) []func() {
	var out []func()
	payload := append([]byte(nil), data...)
	for _, p := range s.ports {
		if _, ok := p.sources[source]; ok && p.receive != nil {
			fn := p.receive
			out = append(out, func() { fn(transport.Packet{Data: payload, Source: source}) })
		}
	}
	if depth > 2 {
		return out
	}
	for _, r := range s.relays {
		for _, src := range r.spec.Sources {
			if src != source {
				continue
			}
			for _, dst := range r.spec.Destinations {
				out = append(out, s.deliverLocked(dst, payload)...)
			}
		}
	}
	return out
}

func (s *System) deliverLocked(dest transport.Handle, data []byte) []func() {
	ep, ok := s.endpoints[dest]
	if ok && ep.receive != nil {
		fn := ep.receive
		payload := append([]byte(nil), data...)
		return []func(){func() { fn(transport.Packet{Data: payload}) }}
	}
	s.sent[dest] = append(s.sent[dest], append([]byte(nil), data...))
	return nil
}

func (s *System) clientListLocked() []*client {
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

func (s *System) broadcast(notes ...transport.RawNotification) {
	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, n := range notes {
		raw := transport.EncodeNotification(n)
		for _, c := range targets {
			c.enqueue(append([]byte(nil), raw...))
		}
	}
}

func entityType(h transport.Handle) transport.ObjectType {
	if h == transport.NoHandle {
		return transport.ObjectOther
	}
	return transport.ObjectEntity
}

func notFound(op string, h transport.Handle) error {
	return transport.Wrap(transport.ErrNotFound, fmt.Sprintf("handle %d", h), op, "", transport.Status(op, StatusObjectNotFound))
}

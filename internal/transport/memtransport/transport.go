package memtransport

import (
	"fmt"
	"sort"

	"midisession/internal/transport"
)

const statusUnknownProperty int32 = -10835

var _ transport.Transport = (*System)(nil)

// CreateClient registers a client whose notify callback receives every
// topology notification from now on.
func (s *System) CreateClient(name string, notify transport.NotifyFunc) (transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("CreateClient"); err != nil {
		return transport.NoHandle, err
	}
	h := s.allocHandleLocked()
	s.clients[h] = newClient(h, name, notify)
	s.clientCreations++
	return h, nil
}

// DisposeClient stops notification delivery and releases the client's ports.
func (s *System) DisposeClient(h transport.Handle) error {
	s.mu.Lock()
	if err := s.failureLocked("DisposeClient"); err != nil {
		s.mu.Unlock()
		return err
	}
	c, ok := s.clients[h]
	if !ok {
		s.mu.Unlock()
		return transport.Status("DisposeClient", StatusInvalidClient)
	}
	c.close()
	delete(s.clients, h)
	for ph, p := range s.ports {
		if p.client == h {
			delete(s.ports, ph)
			s.disposedPorts = append(s.disposedPorts, ph)
		}
	}
	var removed []transport.RawNotification
	for eh, ep := range s.endpoints {
		if ep.owner == h {
			delete(s.endpoints, eh)
			s.detachSourceLocked(eh)
			s.disposedPorts = append(s.disposedPorts, eh)
			removed = append(removed, transport.RawNotification{
				Kind: transport.MsgObjectRemoved, ParentType: transport.ObjectOther,
				Child: eh, ChildType: ep.rec.Direction.ObjectType(),
			})
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.broadcast(append(removed, transport.RawNotification{Kind: transport.MsgSetupChanged})...)
	}
	return nil
}

func (s *System) Devices() ([]transport.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("Devices"); err != nil {
		return nil, err
	}
	out := make([]transport.DeviceRecord, 0, len(s.devices))
	for _, d := range s.devices {
		rec := d.rec
		rec.Entities = append([]transport.Handle(nil), d.rec.Entities...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *System) Entities() ([]transport.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("Entities"); err != nil {
		return nil, err
	}
	out := make([]transport.EntityRecord, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *System) Endpoints() ([]transport.EndpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("Endpoints"); err != nil {
		return nil, err
	}
	s.enumerations++
	out := make([]transport.EndpointRecord, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *System) StringProperty(h transport.Handle, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "StringProperty"
	if err := s.failureLocked(op); err != nil {
		return "", err
	}
	if ep, ok := s.endpoints[h]; ok {
		switch key {
		case transport.PropName:
			return ep.rec.Name, nil
		case transport.PropDisplayName:
			return ep.rec.DisplayName, nil
		case transport.PropModel:
			return ep.model, nil
		case transport.PropManufacturer:
			return ep.manufacturer, nil
		}
		return "", transport.Status(op+" "+key, statusUnknownProperty)
	}
	if d, ok := s.devices[h]; ok {
		switch key {
		case transport.PropName, transport.PropDisplayName:
			return d.rec.Name, nil
		case transport.PropModel:
			return d.rec.Model, nil
		case transport.PropManufacturer:
			return d.rec.Manufacturer, nil
		}
		return "", transport.Status(op+" "+key, statusUnknownProperty)
	}
	if e, ok := s.entities[h]; ok {
		if key == transport.PropName || key == transport.PropDisplayName {
			return e.rec.Name, nil
		}
		return "", transport.Status(op+" "+key, statusUnknownProperty)
	}
	return "", notFound(op, h)
}

func (s *System) IntProperty(h transport.Handle, key string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "IntProperty"
	if err := s.failureLocked(op); err != nil {
		return 0, err
	}
	var (
		id      transport.UniqueID
		offline bool
	)
	switch {
	case s.endpoints[h] != nil:
		id, offline = s.endpoints[h].rec.UniqueID, s.endpoints[h].rec.Offline
	case s.devices[h] != nil:
		id, offline = s.devices[h].rec.UniqueID, s.devices[h].rec.Offline
	case s.entities[h] != nil:
		id = s.entities[h].rec.UniqueID
	default:
		return 0, notFound(op, h)
	}
	switch key {
	case transport.PropUniqueID:
		return int32(id), nil
	case transport.PropOffline:
		if offline {
			return 1, nil
		}
		return 0, nil
	}
	return 0, transport.Status(op+" "+key, statusUnknownProperty)
}

func (s *System) SetStringProperty(h transport.Handle, key, value string) error {
	s.mu.Lock()
	const op = "SetStringProperty"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	ep, ok := s.endpoints[h]
	if !ok {
		s.mu.Unlock()
		return notFound(op, h)
	}
	switch key {
	case transport.PropName:
		ep.rec.Name = value
	case transport.PropDisplayName:
		ep.rec.DisplayName = value
	case transport.PropModel:
		ep.model = value
	case transport.PropManufacturer:
		ep.manufacturer = value
	default:
		s.mu.Unlock()
		return transport.Status(op+" "+key, statusUnknownProperty)
	}
	objType := ep.rec.Direction.ObjectType()
	s.mu.Unlock()

	s.broadcast(transport.RawNotification{Kind: transport.MsgPropertyChanged, Object: h, ObjectType: objType, Property: key})
	return nil
}

func (s *System) SetIntProperty(h transport.Handle, key string, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "SetIntProperty"
	if err := s.failureLocked(op); err != nil {
		return err
	}
	ep, ok := s.endpoints[h]
	if !ok {
		return notFound(op, h)
	}
	switch key {
	case transport.PropUniqueID:
		id := transport.UniqueID(value)
		if id == ep.rec.UniqueID {
			return nil
		}
		if s.idInUseLocked(id) {
			return transport.Status(op+" "+key, StatusIDNotUnique)
		}
		ep.rec.UniqueID = id
	case transport.PropOffline:
		ep.rec.Offline = value != 0
	default:
		return transport.Status(op+" "+key, statusUnknownProperty)
	}
	return nil
}

// CreateVirtualPort publishes a virtual endpoint visible to every client. The
// hint is honored only when no other object already carries it.
func (s *System) CreateVirtualPort(clientHandle transport.Handle, name string, dir transport.Direction, hint transport.UniqueID, receive transport.ReceiveFunc) (transport.Handle, transport.UniqueID, error) {
	s.mu.Lock()
	const op = "CreateVirtualPort"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return transport.NoHandle, transport.InvalidUniqueID, err
	}
	if _, ok := s.clients[clientHandle]; !ok {
		s.mu.Unlock()
		return transport.NoHandle, transport.InvalidUniqueID, transport.Status(op, StatusInvalidClient)
	}
	ep := &endpoint{
		rec: transport.EndpointRecord{
			Handle:      s.allocHandleLocked(),
			UniqueID:    s.allocIDLocked(hint),
			Name:        name,
			DisplayName: name,
			Direction:   dir,
		},
		owner: clientHandle,
	}
	if dir == transport.Input {
		ep.receive = receive
	}
	s.endpoints[ep.rec.Handle] = ep
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectAdded, ParentType: transport.ObjectOther, Child: ep.rec.Handle, ChildType: dir.ObjectType()},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return ep.rec.Handle, ep.rec.UniqueID, nil
}

func (s *System) CreateInputPort(clientHandle transport.Handle, name string, receive transport.ReceiveFunc) (transport.Handle, error) {
	return s.createPort("CreateInputPort", clientHandle, name, true, receive)
}

func (s *System) CreateOutputPort(clientHandle transport.Handle, name string) (transport.Handle, error) {
	return s.createPort("CreateOutputPort", clientHandle, name, false, nil)
}

func (s *System) createPort(op string, clientHandle transport.Handle, name string, input bool, receive transport.ReceiveFunc) (transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked(op); err != nil {
		return transport.NoHandle, err
	}
	if _, ok := s.clients[clientHandle]; !ok {
		return transport.NoHandle, transport.Status(op, StatusInvalidClient)
	}
	p := &port{
		handle:  s.allocHandleLocked(),
		client:  clientHandle,
		name:    name,
		input:   input,
		receive: receive,
		sources: make(map[transport.Handle]struct{}),
	}
	s.ports[p.handle] = p
	return p.handle, nil
}

// DisposePort releases a connection port or a virtual endpoint.
func (s *System) DisposePort(h transport.Handle) error {
	s.mu.Lock()
	const op = "DisposePort"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.ports[h]; ok {
		delete(s.ports, h)
		s.disposedPorts = append(s.disposedPorts, h)
		s.mu.Unlock()
		return nil
	}
	ep, ok := s.endpoints[h]
	if !ok || ep.owner == transport.NoHandle {
		s.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	delete(s.endpoints, h)
	s.detachSourceLocked(h)
	s.disposedPorts = append(s.disposedPorts, h)
	s.mu.Unlock()

	s.broadcast(
		transport.RawNotification{Kind: transport.MsgObjectRemoved, ParentType: transport.ObjectOther, Child: h, ChildType: ep.rec.Direction.ObjectType()},
		transport.RawNotification{Kind: transport.MsgSetupChanged},
	)
	return nil
}

func (s *System) ConnectSource(portHandle, source transport.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "ConnectSource"
	if err := s.failureLocked(op); err != nil {
		return err
	}
	p, ok := s.ports[portHandle]
	if !ok || !p.input {
		return transport.Status(op, StatusInvalidPort)
	}
	ep, ok := s.endpoints[source]
	if !ok || ep.rec.Direction != transport.Output {
		return notFound(op, source)
	}
	p.sources[source] = struct{}{}
	return nil
}

func (s *System) DisconnectSource(portHandle, source transport.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "DisconnectSource"
	if err := s.failureLocked(op); err != nil {
		return err
	}
	p, ok := s.ports[portHandle]
	if !ok || !p.input {
		return transport.Status(op, StatusInvalidPort)
	}
	delete(p.sources, source)
	return nil
}

func (s *System) Send(portHandle, destination transport.Handle, data []byte) error {
	s.mu.Lock()
	const op = "Send"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	p, ok := s.ports[portHandle]
	if !ok || p.input {
		s.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	ep, ok := s.endpoints[destination]
	if !ok || ep.rec.Direction != transport.Input {
		s.mu.Unlock()
		return notFound(op, destination)
	}
	deliveries := s.deliverLocked(destination, data)
	s.mu.Unlock()
	for _, d := range deliveries {
		d()
	}
	return nil
}

func (s *System) Emit(virtualSource transport.Handle, data []byte) error {
	s.mu.Lock()
	const op = "Emit"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	ep, ok := s.endpoints[virtualSource]
	if !ok || ep.owner == transport.NoHandle || ep.rec.Direction != transport.Output {
		s.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	deliveries := s.routeLocked(virtualSource, data, 0)
	s.mu.Unlock()
	for _, d := range deliveries {
		d()
	}
	return nil
}

func (s *System) Capabilities() transport.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

func (s *System) CreateRelay(spec transport.RelaySpec) (transport.Handle, error) {
	s.mu.Lock()
	const op = "CreateRelay"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return transport.NoHandle, err
	}
	if !s.caps.Relays || (spec.OwnerID != "" && !s.caps.PersistentRelays) {
		s.mu.Unlock()
		return transport.NoHandle, transport.Wrap(transport.ErrNotSupported, "relay", "create", "", nil)
	}
	for _, h := range spec.Sources {
		if ep, ok := s.endpoints[h]; !ok || ep.rec.Direction != transport.Output {
			s.mu.Unlock()
			return transport.NoHandle, notFound(op, h)
		}
	}
	for _, h := range spec.Destinations {
		if ep, ok := s.endpoints[h]; !ok || ep.rec.Direction != transport.Input {
			s.mu.Unlock()
			return transport.NoHandle, notFound(op, h)
		}
	}
	r := &relay{handle: s.allocHandleLocked(), spec: spec}
	r.spec.Sources = append([]transport.Handle(nil), spec.Sources...)
	r.spec.Destinations = append([]transport.Handle(nil), spec.Destinations...)
	s.relays[r.handle] = r
	s.mu.Unlock()

	s.broadcast(transport.RawNotification{Kind: transport.MsgThruConnectionsChanged})
	return r.handle, nil
}

func (s *System) FindPersistentRelays(ownerID string) ([]transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("FindPersistentRelays"); err != nil {
		return nil, err
	}
	if !s.caps.PersistentRelays {
		return nil, transport.Wrap(transport.ErrNotSupported, "relay", "find persistent", "", nil)
	}
	var out []transport.Handle
	for h, r := range s.relays {
		if r.spec.OwnerID != "" && r.spec.OwnerID == ownerID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *System) DisposeRelay(h transport.Handle) error {
	s.mu.Lock()
	const op = "DisposeRelay"
	if err := s.failureLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.relays[h]; !ok {
		s.mu.Unlock()
		return notFound(op, h)
	}
	delete(s.relays, h)
	s.mu.Unlock()

	s.broadcast(transport.RawNotification{Kind: transport.MsgThruConnectionsChanged})
	return nil
}

// String identifies the system in logs.
func (s *System) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memtransport(%d clients, %d endpoints)", len(s.clients), len(s.endpoints))
}

package gomiditransport

import (
	"sort"

	"gitlab.com/gomidi/midi/v2"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

var _ transport.Transport = (*Transport)(nil)
var _ transport.Rescanner = (*Transport)(nil)

func (t *Transport) CreateClient(name string, notify transport.NotifyFunc) (transport.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &client{handle: t.allocHandleLocked(), name: name, notify: notify}
	t.clients[c.handle] = c
	return c.handle, nil
}

// DisposeClient releases the client together with its ports and published
// virtual endpoints.
func (t *Transport) DisposeClient(h transport.Handle) error {
	t.mu.Lock()
	const op = "DisposeClient"
	if _, ok := t.clients[h]; !ok {
		t.mu.Unlock()
		return transport.Status(op, StatusInvalidClient)
	}
	delete(t.clients, h)
	for ph, p := range t.ports {
		if p.client == h {
			delete(t.ports, ph)
		}
	}
	var (
		notes    []transport.RawNotification
		virtuals []*endpoint
	)
	for _, ep := range t.endpoints {
		if ep.owner == h {
			virtuals = append(virtuals, ep)
			t.removeEndpointLocked(ep, &notes)
		}
	}
	stops := t.releaseListenersLocked()
	targets := t.clientListLocked()
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, ep := range virtuals {
		closeEndpoint(ep)
	}
	if len(notes) > 0 {
		notes = append(notes, transport.RawNotification{Kind: transport.MsgSetupChanged})
	}
	broadcast(targets, notes)
	return nil
}

func (t *Transport) Devices() ([]transport.DeviceRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.DeviceRecord, 0, len(t.devices))
	for _, d := range t.devices {
		rec := d.rec
		rec.Entities = append([]transport.Handle(nil), d.rec.Entities...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (t *Transport) Entities() ([]transport.EntityRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.EntityRecord, 0, len(t.entities))
	for _, d := range t.entities {
		out = append(out, d.entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (t *Transport) Endpoints() ([]transport.EndpointRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.EndpointRecord, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		out = append(out, ep.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (t *Transport) StringProperty(h transport.Handle, key string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	const op = "StringProperty"
	if ep, ok := t.endpoints[h]; ok {
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
		return "", transport.Status(op+" "+key, StatusUnknownKey)
	}
	if dev := t.deviceByHandleLocked(h); dev != nil {
		switch key {
		case transport.PropName, transport.PropDisplayName:
			return dev.rec.Name, nil
		case transport.PropModel, transport.PropManufacturer:
			return "", nil
		}
		return "", transport.Status(op+" "+key, StatusUnknownKey)
	}
	if dev, ok := t.entities[h]; ok {
		if key == transport.PropName || key == transport.PropDisplayName {
			return dev.entity.Name, nil
		}
		return "", transport.Status(op+" "+key, StatusUnknownKey)
	}
	return "", notFound(op, h)
}

func (t *Transport) IntProperty(h transport.Handle, key string) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	const op = "IntProperty"
	var id transport.UniqueID
	switch {
	case t.endpoints[h] != nil:
		id = t.endpoints[h].rec.UniqueID
	case t.deviceByHandleLocked(h) != nil:
		id = t.deviceByHandleLocked(h).rec.UniqueID
	case t.entities[h] != nil:
		id = t.entities[h].entity.UniqueID
	default:
		return 0, notFound(op, h)
	}
	switch key {
	case transport.PropUniqueID:
		return int32(id), nil
	case transport.PropOffline:
		return 0, nil
	}
	return 0, transport.Status(op+" "+key, StatusUnknownKey)
}

// SetStringProperty only writes to virtual endpoints; hardware port metadata
// belongs to the driver.
func (t *Transport) SetStringProperty(h transport.Handle, key, value string) error {
	t.mu.Lock()
	const op = "SetStringProperty"
	ep, ok := t.endpoints[h]
	if !ok {
		t.mu.Unlock()
		return notFound(op, h)
	}
	if !ep.virtual() {
		t.mu.Unlock()
		return transport.Status(op+" "+key, StatusNotPermitted)
	}
	switch key {
	case transport.PropModel:
		ep.model = value
	case transport.PropManufacturer:
		ep.manufacturer = value
	default:
		t.mu.Unlock()
		return transport.Status(op+" "+key, StatusNotPermitted)
	}
	objType := ep.rec.Direction.ObjectType()
	targets := t.clientListLocked()
	t.mu.Unlock()

	broadcast(targets, []transport.RawNotification{{Kind: transport.MsgPropertyChanged, Object: h, ObjectType: objType, Property: key}})
	return nil
}

func (t *Transport) SetIntProperty(h transport.Handle, key string, value int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	const op = "SetIntProperty"
	ep, ok := t.endpoints[h]
	if !ok {
		return notFound(op, h)
	}
	if !ep.virtual() || key != transport.PropUniqueID {
		return transport.Status(op+" "+key, StatusNotPermitted)
	}
	id := transport.UniqueID(value)
	if id == ep.rec.UniqueID {
		return nil
	}
	if !id.Valid() || t.idTakenLocked(id) {
		return transport.Status(op+" "+key, StatusIDNotUnique)
	}
	delete(t.ids, ep.rec.UniqueID)
	ep.rec.UniqueID = id
	t.ids[id] = h
	return nil
}

// CreateVirtualPort publishes a port through the driver. Drivers without
// virtual port support report transport.ErrNotSupported.
func (t *Transport) CreateVirtualPort(clientHandle transport.Handle, name string, dir transport.Direction, hint transport.UniqueID, receive transport.ReceiveFunc) (transport.Handle, transport.UniqueID, error) {
	const op = "CreateVirtualPort"
	if t.virtual == nil {
		return transport.NoHandle, transport.InvalidUniqueID, transport.Wrap(transport.ErrNotSupported, t.drv.String(), "virtual port", name, nil)
	}
	t.mu.Lock()
	_, ok := t.clients[clientHandle]
	t.mu.Unlock()
	if !ok {
		return transport.NoHandle, transport.InvalidUniqueID, transport.Status(op, StatusInvalidClient)
	}

	ep := &endpoint{owner: clientHandle, receive: receive, key: portKey{dir: dir, name: "virtual\x00" + name}}
	if dir == transport.Input {
		in, err := t.virtual.OpenVirtualIn(name)
		if err != nil {
			return transport.NoHandle, transport.InvalidUniqueID, transport.Wrap(transport.ErrStatus, name, "open virtual input", "", err)
		}
		ep.in = in
	} else {
		out, err := t.virtual.OpenVirtualOut(name)
		if err != nil {
			return transport.NoHandle, transport.InvalidUniqueID, transport.Wrap(transport.ErrStatus, name, "open virtual output", "", err)
		}
		ep.out = out
	}

	t.mu.Lock()
	id := hint
	if !id.Valid() || t.idTakenLocked(id) {
		id = t.deriveIDLocked("virtual\x00" + dir.String() + "\x00" + name)
	}
	ep.rec = transport.EndpointRecord{
		Handle:      t.allocHandleLocked(),
		UniqueID:    id,
		Name:        name,
		DisplayName: name,
		Direction:   dir,
	}
	t.endpoints[ep.rec.Handle] = ep
	t.byKey[ep.key] = ep.rec.Handle
	t.ids[id] = ep.rec.Handle
	targets := t.clientListLocked()
	t.mu.Unlock()

	if ep.in != nil {
		h := ep.rec.Handle
		stop, err := midi.ListenTo(ep.in, func(msg midi.Message, ms int32) {
			t.receiveVirtual(h, msg, ms)
		}, midi.UseSysEx(), midi.HandleError(t.listenError(name)))
		if err != nil {
			t.mu.Lock()
			var discard []transport.RawNotification
			t.removeEndpointLocked(ep, &discard)
			t.mu.Unlock()
			closeEndpoint(ep)
			return transport.NoHandle, transport.InvalidUniqueID, transport.Wrap(transport.ErrStatus, name, "listen", "", err)
		}
		t.mu.Lock()
		t.listeners[ep.rec.Handle] = stop
		t.mu.Unlock()
	}

	broadcast(targets, []transport.RawNotification{
		{Kind: transport.MsgObjectAdded, ParentType: transport.ObjectOther, Child: ep.rec.Handle, ChildType: dir.ObjectType()},
		{Kind: transport.MsgSetupChanged},
	})
	return ep.rec.Handle, id, nil
}

func (t *Transport) CreateInputPort(clientHandle transport.Handle, name string, receive transport.ReceiveFunc) (transport.Handle, error) {
	return t.createPort("CreateInputPort", clientHandle, name, true, receive)
}

func (t *Transport) CreateOutputPort(clientHandle transport.Handle, name string) (transport.Handle, error) {
	return t.createPort("CreateOutputPort", clientHandle, name, false, nil)
}

func (t *Transport) createPort(op string, clientHandle transport.Handle, name string, input bool, receive transport.ReceiveFunc) (transport.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.clients[clientHandle]; !ok {
		return transport.NoHandle, transport.Status(op, StatusInvalidClient)
	}
	p := &port{
		handle:  t.allocHandleLocked(),
		client:  clientHandle,
		name:    name,
		input:   input,
		receive: receive,
		sources: make(map[transport.Handle]struct{}),
	}
	t.ports[p.handle] = p
	return p.handle, nil
}

// DisposePort releases a connection port or a virtual endpoint.
func (t *Transport) DisposePort(h transport.Handle) error {
	t.mu.Lock()
	const op = "DisposePort"
	if _, ok := t.ports[h]; ok {
		delete(t.ports, h)
		stops := t.releaseListenersLocked()
		t.mu.Unlock()
		for _, stop := range stops {
			stop()
		}
		return nil
	}
	ep, ok := t.endpoints[h]
	if !ok || !ep.virtual() {
		t.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	var notes []transport.RawNotification
	t.removeEndpointLocked(ep, &notes)
	stop := t.listeners[h]
	delete(t.listeners, h)
	stops := t.releaseListenersLocked()
	targets := t.clientListLocked()
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, s := range stops {
		s()
	}
	closeEndpoint(ep)
	notes = append(notes, transport.RawNotification{Kind: transport.MsgSetupChanged})
	broadcast(targets, notes)
	return nil
}

func (t *Transport) ConnectSource(portHandle, source transport.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	const op = "ConnectSource"
	p, ok := t.ports[portHandle]
	if !ok || !p.input {
		return transport.Status(op, StatusInvalidPort)
	}
	ep, ok := t.endpoints[source]
	if !ok || ep.rec.Direction != transport.Output {
		return notFound(op, source)
	}
	if err := t.ensureListenerLocked(ep); err != nil {
		return err
	}
	p.sources[source] = struct{}{}
	return nil
}

func (t *Transport) DisconnectSource(portHandle, source transport.Handle) error {
	t.mu.Lock()
	const op = "DisconnectSource"
	p, ok := t.ports[portHandle]
	if !ok || !p.input {
		t.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	delete(p.sources, source)
	stops := t.releaseListenersLocked()
	t.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return nil
}

func (t *Transport) Send(portHandle, destination transport.Handle, data []byte) error {
	t.mu.Lock()
	const op = "Send"
	p, ok := t.ports[portHandle]
	if !ok || p.input {
		t.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	ep, ok := t.endpoints[destination]
	if !ok || ep.rec.Direction != transport.Input {
		t.mu.Unlock()
		return notFound(op, destination)
	}
	deliver, err := t.destinationLocked(ep)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return deliver(data)
}

// Emit sends data out of a virtual source to external subscribers and to
// local ports connected to it.
func (t *Transport) Emit(virtualSource transport.Handle, data []byte) error {
	t.mu.Lock()
	const op = "Emit"
	ep, ok := t.endpoints[virtualSource]
	if !ok || !ep.virtual() || ep.rec.Direction != transport.Output || ep.out == nil {
		t.mu.Unlock()
		return transport.Status(op, StatusInvalidPort)
	}
	out := ep.out
	deliveries := t.routeLocked(virtualSource, data)
	t.mu.Unlock()

	if err := out.Send(data); err != nil {
		return transport.Wrap(transport.ErrStatus, ep.rec.Name, "emit", "", err)
	}
	for _, d := range deliveries {
		d()
	}
	return nil
}

func (t *Transport) deviceByHandleLocked(h transport.Handle) *device {
	for _, d := range t.devices {
		if d.rec.Handle == h {
			return d
		}
	}
	return nil
}

// ensureListenerLocked starts one shared listener per hardware source.
// Virtual sources are fed locally by Emit.
func (t *Transport) ensureListenerLocked(ep *endpoint) error {
	if ep.virtual() {
		return nil
	}
	h := ep.rec.Handle
	if _, ok := t.listeners[h]; ok {
		return nil
	}
	if ep.in == nil {
		return notFound("listen", h)
	}
	stop, err := midi.ListenTo(ep.in, func(msg midi.Message, ms int32) {
		t.receiveHardware(h, msg, ms)
	}, midi.UseSysEx(), midi.UseTimeCode(), midi.HandleError(t.listenError(ep.rec.DisplayName)))
	if err != nil {
		return transport.Wrap(transport.ErrStatus, ep.rec.DisplayName, "listen", "", err)
	}
	t.listeners[h] = stop
	return nil
}

// releaseListenersLocked detaches listeners of hardware sources no port or
// relay still reads from. The returned stop functions run after unlocking.
func (t *Transport) releaseListenersLocked() []func() {
	var stops []func()
	for h, stop := range t.listeners {
		ep := t.endpoints[h]
		if ep != nil && ep.virtual() {
			continue
		}
		if t.sourceInUseLocked(h) {
			continue
		}
		stops = append(stops, stop)
		delete(t.listeners, h)
	}
	return stops
}

func (t *Transport) sourceInUseLocked(h transport.Handle) bool {
	for _, p := range t.ports {
		if _, ok := p.sources[h]; ok {
			return true
		}
	}
	for _, r := range t.relays {
		for _, src := range r.spec.Sources {
			if src == h {
				return true
			}
		}
	}
	return false
}

func (t *Transport) receiveHardware(source transport.Handle, msg midi.Message, ms int32) {
	t.mu.Lock()
	deliveries := t.routeLocked(source, msg.Bytes())
	t.mu.Unlock()
	for _, d := range deliveries {
		d()
	}
}

func (t *Transport) receiveVirtual(h transport.Handle, msg midi.Message, ms int32) {
	t.mu.Lock()
	ep, ok := t.endpoints[h]
	var fn transport.ReceiveFunc
	if ok {
		fn = ep.receive
	}
	t.mu.Unlock()
	if fn != nil {
		fn(transport.Packet{Data: append([]byte(nil), msg.Bytes()...), Timestamp: uint64(ms)})
	}
}

// routeLocked collects deliveries for data leaving source: local ports
// connected to it and relays reading from it.
func (t *Transport) routeLocked(source transport.Handle, data []byte) []func() {
	var out []func()
	payload := append([]byte(nil), data...)
	for _, p := range t.ports {
		if _, ok := p.sources[source]; ok && p.receive != nil {
			fn := p.receive
			out = append(out, func() { fn(transport.Packet{Data: payload, Source: source}) })
		}
	}
	for _, r := range t.relays {
		if !containsHandle(r.spec.Sources, source) {
			continue
		}
		filtered, ok := transport.ApplyRelayParams(r.spec.Params, payload)
		if !ok {
			continue
		}
		for _, dst := range r.spec.Destinations {
			ep, ok := t.endpoints[dst]
			if !ok {
				continue
			}
			deliver, err := t.destinationLocked(ep)
			if err != nil {
				t.logger.Debug("relay destination unavailable", logging.String(logging.FieldEndpoint, ep.rec.DisplayName), logging.Error(err))
				continue
			}
			msg := filtered
			out = append(out, func() {
				if err := deliver(msg); err != nil {
					t.logger.Debug("relay send failed", logging.Error(err))
				}
			})
		}
	}
	return out
}

// destinationLocked returns a sender for ep. Virtual destinations published
// here are delivered to their receive handler directly.
func (t *Transport) destinationLocked(ep *endpoint) (func([]byte) error, error) {
	if ep.virtual() {
		fn := ep.receive
		return func(data []byte) error {
			if fn != nil {
				fn(transport.Packet{Data: append([]byte(nil), data...)})
			}
			return nil
		}, nil
	}
	out := ep.out
	if out == nil {
		return nil, notFound("send", ep.rec.Handle)
	}
	if !out.IsOpen() {
		if err := out.Open(); err != nil {
			return nil, transport.Wrap(transport.ErrStatus, ep.rec.DisplayName, "open", "", err)
		}
	}
	name := ep.rec.DisplayName
	return func(data []byte) error {
		if err := out.Send(data); err != nil {
			return transport.Wrap(transport.ErrStatus, name, "send", "", err)
		}
		return nil
	}, nil
}

func (t *Transport) listenError(name string) func(error) {
	return func(err error) {
		logging.WarnWithContext(t.logger, "midi listener error", "gomidi_listen_failed",
			logging.String(logging.FieldEndpoint, name),
			logging.Error(err),
		)
	}
}

func containsHandle(list []transport.Handle, h transport.Handle) bool {
	for _, v := range list {
		if v == h {
			return true
		}
	}
	return false
}

package gomiditransport

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2/drivers"

	"midisession/internal/transport"
)

var (
	idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("midisession/gomidi"))
	// ALSA appends "client:port" to every port name.
	alsaAddress = regexp.MustCompile(`\s+\d+:\d+$`)
)

// Rescan enumerates the driver and publishes the difference from the last
// enumeration to every client.
func (t *Transport) Rescan() error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	ins, err := t.drv.Ins()
	if err != nil {
		return transport.Wrap(transport.ErrStatus, t.drv.String(), "enumerate inputs", "", err)
	}
	outs, err := t.drv.Outs()
	if err != nil {
		return transport.Wrap(transport.ErrStatus, t.drv.String(), "enumerate outputs", "", err)
	}

	t.mu.Lock()
	notes, stops := t.applyScanLocked(ins, outs)
	targets := t.clientListLocked()
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	broadcast(targets, notes)
	return nil
}

// applyScanLocked reconciles the endpoint table with a fresh enumeration. A
// gomidi In is a source the host emits from; an Out is a destination.
func (t *Transport) applyScanLocked(ins []drivers.In, outs []drivers.Out) ([]transport.RawNotification, []func()) {
	seen := make(map[portKey]bool)
	var notes []transport.RawNotification

	occurrences := make(map[portKey]int)
	keyFor := func(dir transport.Direction, name string) portKey {
		base := portKey{dir: dir, name: name}
		n := occurrences[base]
		occurrences[base] = n + 1
		if n > 0 {
			base.name = name + "#" + strconv.Itoa(n)
		}
		return base
	}

	for _, in := range ins {
		if t.isOwnVirtualLocked(transport.Output, in.String()) {
			continue
		}
		key := keyFor(transport.Output, in.String())
		seen[key] = true
		if h, ok := t.byKey[key]; ok {
			if _, listening := t.listeners[h]; !listening {
				t.endpoints[h].in = in
			}
			continue
		}
		ep := t.addEndpointLocked(key, in.String(), &notes)
		ep.in = in
	}
	for _, out := range outs {
		if t.isOwnVirtualLocked(transport.Input, out.String()) {
			continue
		}
		key := keyFor(transport.Input, out.String())
		seen[key] = true
		if h, ok := t.byKey[key]; ok {
			ep := t.endpoints[h]
			if ep.out == nil || !ep.out.IsOpen() {
				ep.out = out
			}
			continue
		}
		ep := t.addEndpointLocked(key, out.String(), &notes)
		ep.out = out
	}

	var stops []func()
	for key, h := range t.byKey {
		ep := t.endpoints[h]
		if ep.virtual() || seen[key] {
			continue
		}
		if stop, ok := t.listeners[h]; ok {
			stops = append(stops, stop)
			delete(t.listeners, h)
		}
		t.removeEndpointLocked(ep, &notes)
	}

	if len(notes) > 0 {
		notes = append(notes, transport.RawNotification{Kind: transport.MsgSetupChanged})
	}
	return notes, stops
}

func (t *Transport) isOwnVirtualLocked(dir transport.Direction, portName string) bool {
	name := strings.TrimSpace(alsaAddress.ReplaceAllString(portName, ""))
	for _, ep := range t.endpoints {
		if !ep.virtual() || ep.rec.Direction != dir {
			continue
		}
		if name == ep.rec.Name || strings.HasSuffix(name, ":"+ep.rec.Name) {
			return true
		}
	}
	return false
}

func (t *Transport) addEndpointLocked(key portKey, portName string, notes *[]transport.RawNotification) *endpoint {
	devName, epName := splitPortName(portName)
	dev := t.devices[devName]
	if dev == nil {
		dev = &device{}
		dev.rec = transport.DeviceRecord{
			Handle:   t.allocHandleLocked(),
			UniqueID: t.deriveIDLocked("device\x00" + devName),
			Name:     devName,
		}
		dev.entity = transport.EntityRecord{
			Handle:   t.allocHandleLocked(),
			UniqueID: t.deriveIDLocked("entity\x00" + devName),
			Name:     devName,
			Device:   dev.rec.Handle,
		}
		dev.rec.Entities = []transport.Handle{dev.entity.Handle}
		t.devices[devName] = dev
		t.entities[dev.entity.Handle] = dev
		t.ids[dev.rec.UniqueID] = dev.rec.Handle
		t.ids[dev.entity.UniqueID] = dev.entity.Handle
		*notes = append(*notes, transport.RawNotification{
			Kind:       transport.MsgObjectAdded,
			ChildType:  transport.ObjectDevice,
			Child:      dev.rec.Handle,
			ParentType: transport.ObjectOther,
		})
	}
	dev.refs++

	ep := &endpoint{key: key}
	ep.rec = transport.EndpointRecord{
		Handle:      t.allocHandleLocked(),
		UniqueID:    t.deriveIDLocked(key.dir.String() + "\x00" + key.name),
		Name:        epName,
		DisplayName: displayName(devName, epName),
		Direction:   key.dir,
		Entity:      dev.entity.Handle,
		Device:      dev.rec.Handle,
	}
	t.endpoints[ep.rec.Handle] = ep
	t.byKey[key] = ep.rec.Handle
	t.ids[ep.rec.UniqueID] = ep.rec.Handle
	*notes = append(*notes, transport.RawNotification{
		Kind:       transport.MsgObjectAdded,
		Parent:     dev.entity.Handle,
		ParentType: transport.ObjectEntity,
		Child:      ep.rec.Handle,
		ChildType:  key.dir.ObjectType(),
	})
	return ep
}

func (t *Transport) removeEndpointLocked(ep *endpoint, notes *[]transport.RawNotification) {
	h := ep.rec.Handle
	delete(t.endpoints, h)
	delete(t.byKey, ep.key)
	delete(t.ids, ep.rec.UniqueID)
	for _, p := range t.ports {
		delete(p.sources, h)
	}
	parent, parentType := ep.rec.Entity, transport.ObjectEntity
	if parent == transport.NoHandle {
		parentType = transport.ObjectOther
	}
	*notes = append(*notes, transport.RawNotification{
		Kind:       transport.MsgObjectRemoved,
		Parent:     parent,
		ParentType: parentType,
		Child:      h,
		ChildType:  ep.rec.Direction.ObjectType(),
	})

	dev := t.entities[ep.rec.Entity]
	if dev == nil {
		return
	}
	dev.refs--
	if dev.refs > 0 {
		return
	}
	delete(t.devices, dev.rec.Name)
	delete(t.entities, dev.entity.Handle)
	delete(t.ids, dev.rec.UniqueID)
	delete(t.ids, dev.entity.UniqueID)
	*notes = append(*notes, transport.RawNotification{
		Kind:       transport.MsgObjectRemoved,
		ChildType:  transport.ObjectDevice,
		Child:      dev.rec.Handle,
		ParentType: transport.ObjectOther,
	})
}

// deriveIDLocked hashes seed into a non-zero id that no live object carries.
// The same hardware port maps to the same id on every run unless it collides.
func (t *Transport) deriveIDLocked(seed string) transport.UniqueID {
	sum := uuid.NewSHA1(idNamespace, []byte(seed))
	id := transport.UniqueID(int32(binary.BigEndian.Uint32(sum[:4])))
	for !id.Valid() || t.idTakenLocked(id) {
		id++
	}
	return id
}

func (t *Transport) idTakenLocked(id transport.UniqueID) bool {
	_, ok := t.ids[id]
	return ok
}

// splitPortName breaks "Device:Port 20:0" style names into device and port
// parts. Names without a separator describe a single-port device.
func splitPortName(portName string) (string, string) {
	name := strings.TrimSpace(alsaAddress.ReplaceAllString(portName, ""))
	if i := strings.Index(name, ":"); i > 0 && i < len(name)-1 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
	}
	return name, name
}

func displayName(devName, epName string) string {
	if epName == devName || strings.HasPrefix(epName, devName) {
		return epName
	}
	return devName + " " + epName
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

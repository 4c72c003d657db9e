package transport

import "strconv"

// Handle is a native object reference issued by the host transport. Handles
// are not stable across device reconnections.
type Handle uint32

// NoHandle is the zero handle, never issued for a live object.
const NoHandle Handle = 0

// UniqueID is the process-global integer id the transport assigns to an
// object. It is best-effort unique and may be reassigned on collision.
type UniqueID int32

// InvalidUniqueID marks an absent or unreadable unique id.
const InvalidUniqueID UniqueID = 0

// Valid reports whether id carries a usable value.
func (id UniqueID) Valid() bool { return id != InvalidUniqueID }

// ObjectType tags the kind of object referenced by a notification.
type ObjectType int32

const (
	ObjectOther               ObjectType = -1
	ObjectDevice              ObjectType = 0
	ObjectEntity              ObjectType = 1
	ObjectSource              ObjectType = 2
	ObjectDestination         ObjectType = 3
	ObjectExternalDevice      ObjectType = 0x10
	ObjectExternalEntity      ObjectType = 0x11
	ObjectExternalSource      ObjectType = 0x12
	ObjectExternalDestination ObjectType = 0x13
)

func (t ObjectType) String() string {
	switch t {
	case ObjectDevice:
		return "device"
	case ObjectEntity:
		return "entity"
	case ObjectSource:
		return "source"
	case ObjectDestination:
		return "destination"
	case ObjectExternalDevice:
		return "external-device"
	case ObjectExternalEntity:
		return "external-entity"
	case ObjectExternalSource:
		return "external-source"
	case ObjectExternalDestination:
		return "external-destination"
	case ObjectOther:
		return "other"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Direction tells whether an endpoint receives or emits MIDI data.
type Direction int

const (
	// Input endpoints receive MIDI (destinations).
	Input Direction = iota
	// Output endpoints emit MIDI (sources).
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Opposite returns the direction a connection binds to.
func (d Direction) Opposite() Direction {
	if d == Output {
		return Input
	}
	return Output
}

// ObjectType returns the notification object type matching endpoints of d.
func (d Direction) ObjectType() ObjectType {
	if d == Output {
		return ObjectSource
	}
	return ObjectDestination
}

// Property keys understood by every transport.
const (
	PropName         = "name"
	PropDisplayName  = "displayName"
	PropUniqueID     = "uniqueID"
	PropModel        = "model"
	PropManufacturer = "manufacturer"
	PropOffline      = "offline"
)

// DeviceRecord is an immutable snapshot of a device.
type DeviceRecord struct {
	Handle       Handle
	UniqueID     UniqueID
	Name         string
	Manufacturer string
	Model        string
	Offline      bool
	Entities     []Handle
}

// EntityRecord is an immutable snapshot of an entity.
type EntityRecord struct {
	Handle   Handle
	UniqueID UniqueID
	Name     string
	Device   Handle
}

// EndpointRecord is an immutable snapshot of an endpoint.
type EndpointRecord struct {
	Handle      Handle
	UniqueID    UniqueID
	Name        string
	DisplayName string
	Direction   Direction
	Entity      Handle
	Device      Handle
	Offline     bool
}

// Identity is the key used to compare endpoints across snapshots: the unique
// id when valid, otherwise the native handle.
type Identity struct {
	ID     UniqueID
	Handle Handle
}

// Identity returns the endpoint's comparison key.
func (e EndpointRecord) Identity() Identity {
	if e.UniqueID.Valid() {
		return Identity{ID: e.UniqueID}
	}
	return Identity{Handle: e.Handle}
}

// Packet is an opaque MIDI payload delivered to a receive handler.
type Packet struct {
	Data      []byte
	Timestamp uint64
	// Source is the endpoint the packet arrived from, when known.
	Source Handle
}

// ReceiveFunc handles packets arriving at a port. It runs on a transport
// goroutine and must not block.
type ReceiveFunc func(Packet)

// NotifyFunc receives a raw notification buffer. The buffer is only valid for
// the duration of the call.
type NotifyFunc func(raw []byte)

// Capabilities reports optional features of a transport.
type Capabilities struct {
	Relays           bool
	PersistentRelays bool
}

// MaxRelayEndpoints bounds the sources and destinations of a relay.
const MaxRelayEndpoints = 8

// RelaySpec describes a relay ("thru") connection to create.
type RelaySpec struct {
	Sources      []Handle
	Destinations []Handle
	// OwnerID makes the relay persistent when non-empty.
	OwnerID string
	Params  RelayParams
}

// RelayParams carries the routing options applied by the transport.
type RelayParams struct {
	ChannelMap        [16]uint8
	UseChannelMap     bool
	LowNote           uint8
	HighNote          uint8
	LowVelocity       uint8
	HighVelocity      uint8
	FilterSysEx       bool
	FilterMTC         bool
	FilterBeatClock   bool
	FilterTuneRequest bool
	FilterAllControls bool
}

// DefaultRelayParams passes everything through unchanged.
func DefaultRelayParams() RelayParams {
	p := RelayParams{HighNote: 127, HighVelocity: 127}
	for i := range p.ChannelMap {
		p.ChannelMap[i] = uint8(i)
	}
	return p
}

// Transport is the set of synchronous primitives a host MIDI system offers.
// Implementations are the only code that touches host handles.
type Transport interface {
	CreateClient(name string, notify NotifyFunc) (Handle, error)
	DisposeClient(client Handle) error

	Devices() ([]DeviceRecord, error)
	Entities() ([]EntityRecord, error)
	Endpoints() ([]EndpointRecord, error)

	StringProperty(h Handle, key string) (string, error)
	IntProperty(h Handle, key string) (int32, error)
	SetStringProperty(h Handle, key, value string) error
	SetIntProperty(h Handle, key string, value int32) error

	CreateVirtualPort(client Handle, name string, dir Direction, hint UniqueID, receive ReceiveFunc) (Handle, UniqueID, error)
	CreateInputPort(client Handle, name string, receive ReceiveFunc) (Handle, error)
	CreateOutputPort(client Handle, name string) (Handle, error)
	DisposePort(port Handle) error
	ConnectSource(port, source Handle) error
	DisconnectSource(port, source Handle) error
	Send(port, destination Handle, data []byte) error
	Emit(virtualSource Handle, data []byte) error

	Capabilities() Capabilities
	CreateRelay(spec RelaySpec) (Handle, error)
	FindPersistentRelays(ownerID string) ([]Handle, error)
	DisposeRelay(relay Handle) error
}

// Rescanner is implemented by transports that discover topology by polling
// and can be asked to poll immediately.
type Rescanner interface {
	Rescan() error
}

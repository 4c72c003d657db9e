package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"midisession/internal/transport"
)

// Enumerator is the slice of the transport a rebuild needs.
type Enumerator interface {
	Devices() ([]transport.DeviceRecord, error)
	Entities() ([]transport.EntityRecord, error)
	Endpoints() ([]transport.EndpointRecord, error)
}

// OwnedFunc reports whether an endpoint was created by the local manager.
type OwnedFunc func(transport.EndpointRecord) bool

// Snapshot is one immutable view of the transport's object graph. Nothing
// in a published snapshot is modified afterwards; callers must not modify
// the slices they read from it.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time

	Devices  []transport.DeviceRecord
	Entities []transport.EntityRecord

	Inputs         []transport.EndpointRecord
	InputsOwned    []transport.EndpointRecord
	InputsUnowned  []transport.EndpointRecord
	Outputs        []transport.EndpointRecord
	OutputsOwned   []transport.EndpointRecord
	OutputsUnowned []transport.EndpointRecord

	devices   map[transport.Handle]int
	entities  map[transport.Handle]int
	endpoints map[transport.Handle]transport.EndpointRecord
}

// NewSnapshot indexes the given records. owned may be nil, in which case
// every endpoint is unowned.
func NewSnapshot(gen uint64, devices []transport.DeviceRecord, entities []transport.EntityRecord, endpoints []transport.EndpointRecord, owned OwnedFunc) *Snapshot {
	s := &Snapshot{
		Generation: gen,
		BuiltAt:    time.Now(),
		Devices:    devices,
		Entities:   entities,
		devices:    make(map[transport.Handle]int, len(devices)),
		entities:   make(map[transport.Handle]int, len(entities)),
		endpoints:  make(map[transport.Handle]transport.EndpointRecord, len(endpoints)),
	}
	for i, d := range devices {
		s.devices[d.Handle] = i
	}
	for i, e := range entities {
		s.entities[e.Handle] = i
	}
	for _, ep := range endpoints {
		s.endpoints[ep.Handle] = ep
		isOwned := owned != nil && owned(ep)
		if ep.Direction == transport.Input {
			s.Inputs = append(s.Inputs, ep)
			if isOwned {
				s.InputsOwned = append(s.InputsOwned, ep)
			} else {
				s.InputsUnowned = append(s.InputsUnowned, ep)
			}
			continue
		}
		s.Outputs = append(s.Outputs, ep)
		if isOwned {
			s.OutputsOwned = append(s.OutputsOwned, ep)
		} else {
			s.OutputsUnowned = append(s.OutputsUnowned, ep)
		}
	}
	return s
}

// Endpoints returns every endpoint of dir.
func (s *Snapshot) Endpoints(dir transport.Direction) []transport.EndpointRecord {
	if s == nil {
		return nil
	}
	if dir == transport.Output {
		return s.Outputs
	}
	return s.Inputs
}

// Endpoint looks an endpoint up by native handle.
func (s *Snapshot) Endpoint(h transport.Handle) (transport.EndpointRecord, bool) {
	if s == nil {
		return transport.EndpointRecord{}, false
	}
	ep, ok := s.endpoints[h]
	return ep, ok
}

// Device looks a device up by native handle.
func (s *Snapshot) Device(h transport.Handle) (transport.DeviceRecord, bool) {
	if s == nil {
		return transport.DeviceRecord{}, false
	}
	i, ok := s.devices[h]
	if !ok {
		return transport.DeviceRecord{}, false
	}
	return s.Devices[i], true
}

// Entity looks an entity up by native handle.
func (s *Snapshot) Entity(h transport.Handle) (transport.EntityRecord, bool) {
	if s == nil {
		return transport.EntityRecord{}, false
	}
	i, ok := s.entities[h]
	if !ok {
		return transport.EntityRecord{}, false
	}
	return s.Entities[i], true
}

// EndpointByUniqueID returns the first endpoint carrying id.
func (s *Snapshot) EndpointByUniqueID(id transport.UniqueID) (transport.EndpointRecord, bool) {
	if s == nil || !id.Valid() {
		return transport.EndpointRecord{}, false
	}
	for _, list := range [][]transport.EndpointRecord{s.Inputs, s.Outputs} {
		for _, ep := range list {
			if ep.UniqueID == id {
				return ep, true
			}
		}
	}
	return transport.EndpointRecord{}, false
}

// Cache publishes snapshots through a single atomic pointer so readers on
// any goroutine see either the previous or the next snapshot, never a mix.
type Cache struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
}

// New returns a cache holding an empty snapshot.
func New() *Cache {
	c := &Cache{}
	c.current.Store(NewSnapshot(0, nil, nil, nil, nil))
	return c
}

// Load returns the current snapshot.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Rebuild enumerates the transport and swaps in a fresh snapshot. On error
// the previous snapshot stays published.
func (c *Cache) Rebuild(src Enumerator, owned OwnedFunc) (*Snapshot, error) {
	devices, err := src.Devices()
	if err != nil {
		return c.Load(), fmt.Errorf("enumerate devices: %w", err)
	}
	entities, err := src.Entities()
	if err != nil {
		return c.Load(), fmt.Errorf("enumerate entities: %w", err)
	}
	endpoints, err := src.Endpoints()
	if err != nil {
		return c.Load(), fmt.Errorf("enumerate endpoints: %w", err)
	}
	snap := NewSnapshot(c.gen.Add(1), devices, entities, endpoints, owned)
	c.current.Store(snap)
	return snap, nil
}

// Reset publishes an empty snapshot.
func (c *Cache) Reset() {
	c.current.Store(NewSnapshot(c.gen.Add(1), nil, nil, nil, nil))
}

package manager

import (
	"context"
	"fmt"
	"sort"

	"midisession/internal/transport"
)

// ResourceKind names one of the five resource tables.
type ResourceKind int

const (
	KindVirtualInput ResourceKind = iota
	KindVirtualOutput
	KindInputConnection
	KindOutputConnection
	KindThruConnection
)

var resourceKinds = []ResourceKind{KindVirtualInput, KindVirtualOutput, KindInputConnection, KindOutputConnection, KindThruConnection}

func (k ResourceKind) String() string {
	switch k {
	case KindVirtualInput:
		return "virtual_input"
	case KindVirtualOutput:
		return "virtual_output"
	case KindInputConnection:
		return "input_connection"
	case KindOutputConnection:
		return "output_connection"
	case KindThruConnection:
		return "thru_connection"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ResourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ResourceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseResourceKind maps a kind name back to its ResourceKind.
func ParseResourceKind(value string) (ResourceKind, error) {
	for _, k := range resourceKinds {
		if k.String() == value {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", value)
}

// RemoveTarget selects what Remove tears down.
type RemoveTarget struct {
	tag string
	all bool
}

// Tag targets the single resource carrying tag.
func Tag(tag string) RemoveTarget { return RemoveTarget{tag: tag} }

// All targets every resource of a kind.
func All() RemoveTarget { return RemoveTarget{all: true} }

// ResourceInfo is a read-only summary of one managed resource.
type ResourceInfo struct {
	Kind     ResourceKind       `json:"kind"`
	Tag      string             `json:"tag"`
	Name     string             `json:"name,omitempty"`
	Handle   transport.Handle   `json:"handle"`
	UniqueID transport.UniqueID `json:"unique_id,omitempty"`
	Realized bool               `json:"realized"`
	// Mode and Criteria describe connections.
	Mode     string   `json:"mode,omitempty"`
	Criteria []string `json:"criteria,omitempty"`
	// Bound lists the endpoints a connection is currently attached to.
	Bound []transport.EndpointRecord `json:"bound,omitempty"`
	// Sources and Destinations describe thru connections.
	Sources      []transport.EndpointRecord `json:"sources,omitempty"`
	Destinations []transport.EndpointRecord `json:"destinations,omitempty"`
	LastError    string                     `json:"last_error,omitempty"`
}

// resource is the contract shared by the five table entry types. realize and
// teardown run on the serial queue.
type resource interface {
	kind() ResourceKind
	tag() string
	realize(ctx context.Context, m *Manager) error
	teardown(m *Manager) error
	info() ResourceInfo
}

// table holds the resources of one kind keyed by tag.
type table[R resource] struct {
	kind    ResourceKind
	entries map[string]R
}

func newTable[R resource](kind ResourceKind) *table[R] {
	return &table[R]{kind: kind, entries: make(map[string]R)}
}

func (t *table[R]) get(tag string) (R, bool) {
	r, ok := t.entries[tag]
	return r, ok
}

func (t *table[R]) put(r R) {
	t.entries[r.tag()] = r
}

func (t *table[R]) delete(tag string) {
	delete(t.entries, tag)
}

func (t *table[R]) len() int {
	return len(t.entries)
}

// sorted returns the entries ordered by tag.
func (t *table[R]) sorted() []R {
	out := make([]R, 0, len(t.entries))
	for _, r := range t.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tag() < out[j].tag() })
	return out
}

func (t *table[R]) infos() []ResourceInfo {
	entries := t.sorted()
	out := make([]ResourceInfo, 0, len(entries))
	for _, r := range entries {
		out = append(out, r.info())
	}
	return out
}

// resourceIndex is the published, immutable view of every table.
type resourceIndex struct {
	byKind map[ResourceKind]map[string]ResourceInfo
	all    []ResourceInfo
}

func (ix *resourceIndex) lookup(kind ResourceKind, tag string) (ResourceInfo, bool) {
	if ix == nil {
		return ResourceInfo{}, false
	}
	info, ok := ix.byKind[kind][tag]
	return info, ok
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

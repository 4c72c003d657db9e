package manager

import (
	"context"
	"fmt"

	"midisession/internal/transport"
)

// ThruParams are the routing options of a thru connection.
type ThruParams = transport.RelayParams

// DefaultThruParams passes every message through unchanged.
func DefaultThruParams() ThruParams {
	return transport.DefaultRelayParams()
}

// ThruLifecycle decides whether a thru connection outlives the session.
type ThruLifecycle struct {
	ownerID string
}

// NonPersistent thru connections are stored in the session's table and
// removed with it.
func NonPersistent() ThruLifecycle { return ThruLifecycle{} }

// Persistent thru connections are owned by ownerID inside the host and
// survive the session. They are never stored in a table.
func Persistent(ownerID string) ThruLifecycle { return ThruLifecycle{ownerID: ownerID} }

// OwnerID is empty for non-persistent connections.
func (l ThruLifecycle) OwnerID() string { return l.ownerID }

func (l ThruLifecycle) persistent() bool { return l.ownerID != "" }

type thruConnection struct {
	resourceTag  string
	sources      []transport.EndpointRecord
	destinations []transport.EndpointRecord
	lifecycle    ThruLifecycle
	params       ThruParams

	relay   transport.Handle
	lastErr error
}

func newThruConnection(tag string, outputs, inputs []transport.EndpointRecord, lifecycle ThruLifecycle, params ThruParams) *thruConnection {
	return &thruConnection{
		resourceTag:  tag,
		sources:      truncate(outputs, transport.MaxRelayEndpoints),
		destinations: truncate(inputs, transport.MaxRelayEndpoints),
		lifecycle:    lifecycle,
		params:       params,
	}
}

func truncate(eps []transport.EndpointRecord, limit int) []transport.EndpointRecord {
	if len(eps) > limit {
		eps = eps[:limit]
	}
	return append([]transport.EndpointRecord(nil), eps...)
}

func (t *thruConnection) kind() ResourceKind { return KindThruConnection }
func (t *thruConnection) tag() string        { return t.resourceTag }

func (t *thruConnection) info() ResourceInfo {
	return ResourceInfo{
		Kind:         KindThruConnection,
		Tag:          t.resourceTag,
		Handle:       t.relay,
		Realized:     t.relay != transport.NoHandle,
		Sources:      append([]transport.EndpointRecord(nil), t.sources...),
		Destinations: append([]transport.EndpointRecord(nil), t.destinations...),
		LastError:    errorString(t.lastErr),
	}
}

func (t *thruConnection) realize(ctx context.Context, m *Manager) error {
	caps := m.tr.Capabilities()
	if !caps.Relays || (t.lifecycle.persistent() && !caps.PersistentRelays) {
		t.lastErr = transport.Wrap(transport.ErrNotSupported, "thru connection "+t.resourceTag, "create relay", "transport has no relay support", nil)
		return t.lastErr
	}
	spec := transport.RelaySpec{
		Sources:      handlesOf(t.sources),
		Destinations: handlesOf(t.destinations),
		OwnerID:      t.lifecycle.ownerID,
		Params:       t.params,
	}
	h, err := m.tr.CreateRelay(spec)
	if err != nil {
		t.lastErr = fmt.Errorf("create thru connection %q: %w", t.resourceTag, err)
		return t.lastErr
	}
	t.relay = h
	t.lastErr = nil
	return nil
}

func (t *thruConnection) teardown(m *Manager) error {
	if t.relay == transport.NoHandle {
		return nil
	}
	h := t.relay
	t.relay = transport.NoHandle
	if err := m.tr.DisposeRelay(h); err != nil {
		return fmt.Errorf("dispose thru connection %q: %w", t.resourceTag, err)
	}
	return nil
}

func handlesOf(eps []transport.EndpointRecord) []transport.Handle {
	out := make([]transport.Handle, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.Handle)
	}
	return out
}

package gomiditransport

import "midisession/internal/transport"

// Capabilities reports in-process relays. They live as long as the
// transport, so persistent relays are not offered.
func (t *Transport) Capabilities() transport.Capabilities {
	return transport.Capabilities{Relays: true}
}

func (t *Transport) CreateRelay(spec transport.RelaySpec) (transport.Handle, error) {
	const op = "CreateRelay"
	if spec.OwnerID != "" {
		return transport.NoHandle, transport.Wrap(transport.ErrNotSupported, "relay", "create", "persistent relays need a host-side thru service", nil)
	}
	t.mu.Lock()
	for _, h := range spec.Sources {
		if ep, ok := t.endpoints[h]; !ok || ep.rec.Direction != transport.Output {
			t.mu.Unlock()
			return transport.NoHandle, notFound(op, h)
		}
	}
	for _, h := range spec.Destinations {
		if ep, ok := t.endpoints[h]; !ok || ep.rec.Direction != transport.Input {
			t.mu.Unlock()
			return transport.NoHandle, notFound(op, h)
		}
	}
	for _, h := range spec.Sources {
		if err := t.ensureListenerLocked(t.endpoints[h]); err != nil {
			stops := t.releaseListenersLocked()
			t.mu.Unlock()
			for _, stop := range stops {
				stop()
			}
			return transport.NoHandle, err
		}
	}
	r := &relay{handle: t.allocHandleLocked(), spec: spec}
	r.spec.Sources = append([]transport.Handle(nil), spec.Sources...)
	r.spec.Destinations = append([]transport.Handle(nil), spec.Destinations...)
	t.relays[r.handle] = r
	targets := t.clientListLocked()
	t.mu.Unlock()

	broadcast(targets, []transport.RawNotification{{Kind: transport.MsgThruConnectionsChanged}})
	return r.handle, nil
}

func (t *Transport) FindPersistentRelays(ownerID string) ([]transport.Handle, error) {
	return nil, transport.Wrap(transport.ErrNotSupported, "relay", "find persistent", ownerID, nil)
}

func (t *Transport) DisposeRelay(h transport.Handle) error {
	t.mu.Lock()
	if _, ok := t.relays[h]; !ok {
		t.mu.Unlock()
		return notFound("DisposeRelay", h)
	}
	delete(t.relays, h)
	stops := t.releaseListenersLocked()
	targets := t.clientListLocked()
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	broadcast(targets, []transport.RawNotification{{Kind: transport.MsgThruConnectionsChanged}})
	return nil
}

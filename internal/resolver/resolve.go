package resolver

import "midisession/internal/transport"

// OwnedFunc reports whether an endpoint belongs to the local manager.
type OwnedFunc func(transport.EndpointRecord) bool

// Resolve returns the endpoints a connection should be bound to, in the
// order they appear in endpoints and without duplicates. endpoints must
// already be limited to the direction the connection binds. Within one
// snapshot endpoints are told apart by handle, so two endpoints whose
// unique ids collide are both kept.
func Resolve(criteria []Criterion, mode Mode, filter Filter, endpoints []transport.EndpointRecord, owned OwnedFunc) []transport.EndpointRecord {
	candidates := make([]transport.EndpointRecord, 0, len(endpoints))
	for _, ep := range endpoints {
		if !filter.Owned && owned != nil && owned(ep) {
			continue
		}
		candidates = append(candidates, ep)
	}
	for _, ex := range filter.Exclude {
		excluded := handleSet(ex.match(candidates))
		if len(excluded) == 0 {
			continue
		}
		kept := candidates[:0:0]
		for _, ep := range candidates {
			if _, drop := excluded[ep.Handle]; !drop {
				kept = append(kept, ep)
			}
		}
		candidates = kept
	}

	if mode == ModeAll {
		return dedupe(candidates)
	}

	selected := make(map[transport.Handle]struct{})
	for _, c := range criteria {
		for _, ep := range c.match(candidates) {
			selected[ep.Handle] = struct{}{}
		}
	}
	out := make([]transport.EndpointRecord, 0, len(selected))
	for _, ep := range candidates {
		if _, ok := selected[ep.Handle]; ok {
			out = append(out, ep)
		}
	}
	return dedupe(out)
}

// bindKey pairs an endpoint's identity with the handle it is bound under.
type bindKey struct {
	id     transport.Identity
	handle transport.Handle
}

func keyOf(ep transport.EndpointRecord) bindKey {
	return bindKey{id: ep.Identity(), handle: ep.Handle}
}

// Diff splits wanted against current by identity and handle. keep holds the
// wanted records for endpoints already bound under the same handle, so
// refreshed metadata replaces the old copy. An identity that reappears under
// a new handle is unbound from the old handle and bound to the new one.
// Endpoints sharing a colliding unique id are tracked separately.
func Diff(current, wanted []transport.EndpointRecord) (keep, bind, unbind []transport.EndpointRecord) {
	have := make(map[bindKey]struct{}, len(current))
	for _, ep := range current {
		have[keyOf(ep)] = struct{}{}
	}
	want := make(map[bindKey]struct{}, len(wanted))
	for _, ep := range wanted {
		want[keyOf(ep)] = struct{}{}
	}
	for _, ep := range wanted {
		if _, ok := have[keyOf(ep)]; ok {
			keep = append(keep, ep)
		} else {
			bind = append(bind, ep)
		}
	}
	for _, ep := range current {
		if _, ok := want[keyOf(ep)]; !ok {
			unbind = append(unbind, ep)
		}
	}
	return keep, bind, unbind
}

func handleSet(eps []transport.EndpointRecord) map[transport.Handle]struct{} {
	set := make(map[transport.Handle]struct{}, len(eps))
	for _, ep := range eps {
		set[ep.Handle] = struct{}{}
	}
	return set
}

func dedupe(eps []transport.EndpointRecord) []transport.EndpointRecord {
	seen := make(map[transport.Handle]struct{}, len(eps))
	out := eps[:0:0]
	for _, ep := range eps {
		if _, dup := seen[ep.Handle]; dup {
			continue
		}
		seen[ep.Handle] = struct{}{}
		out = append(out, ep)
	}
	return out
}

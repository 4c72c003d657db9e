package resolver

import (
	"go.uber.org/multierr"

	"midisession/internal/transport"
)

// BindFunc attaches or detaches one endpoint.
type BindFunc func(transport.EndpointRecord) error

// Outcome summarises a reconcile pass.
type Outcome struct {
	// Bound is the connection's binding set after the pass: kept records,
	// successful binds, and endpoints whose unbind failed.
	Bound    []transport.EndpointRecord
	Added    int
	Removed  int
	Failures int
}

// Reconcile moves a connection from current to wanted. Every unbind and bind
// is attempted even when earlier ones fail; failures are wrapped with
// transport.ErrPartial and combined, so multierr.Errors lists them.
func Reconcile(current, wanted []transport.EndpointRecord, bind, unbind BindFunc) (Outcome, error) {
	keep, toBind, toUnbind := Diff(current, wanted)
	out := Outcome{Bound: append([]transport.EndpointRecord(nil), keep...)}
	var errs error

	for _, ep := range toUnbind {
		if err := unbind(ep); err != nil {
			out.Failures++
			out.Bound = append(out.Bound, ep)
			errs = multierr.Append(errs, transport.Wrap(transport.ErrPartial, endpointLabel(ep), "unbind", "", err))
			continue
		}
		out.Removed++
	}
	for _, ep := range toBind {
		if err := bind(ep); err != nil {
			out.Failures++
			errs = multierr.Append(errs, transport.Wrap(transport.ErrPartial, endpointLabel(ep), "bind", "", err))
			continue
		}
		out.Added++
		out.Bound = append(out.Bound, ep)
	}
	return out, errs
}

func endpointLabel(ep transport.EndpointRecord) string {
	if ep.DisplayName != "" {
		return ep.DisplayName
	}
	return ep.Name
}

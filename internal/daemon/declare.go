package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"midisession/internal/config"
	"midisession/internal/logging"
	"midisession/internal/manager"
	"midisession/internal/resolver"
	"midisession/internal/transport"
)

// declare adds every resource listed in the configuration. Failures are
// collected; a failed connection stays registered and binds later.
func (d *Daemon) declare(ctx context.Context, session *manager.Manager) error {
	var errs error
	for _, port := range d.cfg.VirtualInputs {
		_, err := session.AddVirtualInput(ctx, portName(port), port.Tag, d.cellFor(port, transport.Input), d.countPacket)
		errs = multierr.Append(errs, d.declared(manager.KindVirtualInput, port.Tag, err))
	}
	for _, port := range d.cfg.VirtualOutputs {
		_, err := session.AddVirtualOutput(ctx, portName(port), port.Tag, d.cellFor(port, transport.Output))
		errs = multierr.Append(errs, d.declared(manager.KindVirtualOutput, port.Tag, err))
	}
	for _, conn := range d.cfg.InputConnections {
		criteria, mode, filter, err := connectionSpec(conn)
		if err == nil {
			err = session.AddInputConnection(ctx, conn.Tag, criteria, mode, filter, d.countPacket)
		}
		errs = multierr.Append(errs, d.declared(manager.KindInputConnection, conn.Tag, err))
	}
	for _, conn := range d.cfg.OutputConnections {
		criteria, mode, filter, err := connectionSpec(conn)
		if err == nil {
			err = session.AddOutputConnection(ctx, conn.Tag, criteria, mode, filter)
		}
		errs = multierr.Append(errs, d.declared(manager.KindOutputConnection, conn.Tag, err))
	}
	for _, thru := range d.cfg.ThruConnections {
		errs = multierr.Append(errs, d.declared(manager.KindThruConnection, thru.Tag, d.declareThru(ctx, session, thru)))
	}
	return errs
}

func (d *Daemon) declared(kind manager.ResourceKind, tag string, err error) error {
	attrs := logging.ResourceAttrs(kind.String(), tag)
	if err != nil {
		logging.WarnWithContext(d.logger, "declared resource failed", "declare_resource_failed",
			append(attrs, logging.Error(err))...,
		)
		return fmt.Errorf("%s %q: %w", kind, tag, err)
	}
	d.logger.Debug("declared resource", logging.Args(attrs...)...)
	return nil
}

// cellFor returns the persisted id cell for port, or nil when the port does
// not persist its id.
func (d *Daemon) cellFor(port config.VirtualPort, dir transport.Direction) manager.IDCell {
	if !port.PersistID || d.ids == nil {
		return nil
	}
	return d.ids.Cell(port.Tag, dir)
}

func (d *Daemon) declareThru(ctx context.Context, session *manager.Manager, thru config.ThruConnection) error {
	if err := session.Sync(ctx); err != nil {
		return err
	}
	outputs, missingOut := endpointsByDisplayName(session.Endpoints(transport.Output), thru.Outputs)
	inputs, missingIn := endpointsByDisplayName(session.Endpoints(transport.Input), thru.Inputs)
	if missing := append(missingOut, missingIn...); len(missing) > 0 {
		attrs := append(logging.ResourceAttrs(manager.KindThruConnection.String(), thru.Tag),
			logging.String("missing", strings.Join(missing, ", ")))
		d.logger.Warn("thru endpoints not found", logging.Args(attrs...)...)
	}
	if len(outputs) == 0 || len(inputs) == 0 {
		return errors.New("no endpoints available for relay")
	}

	lifecycle := manager.NonPersistent()
	if thru.Persistent() {
		lifecycle = manager.Persistent(thru.OwnerID)
	}
	params := manager.DefaultThruParams()
	params.FilterSysEx = thru.FilterSysEx
	params.FilterBeatClock = thru.FilterBeatClock
	params.FilterMTC = thru.FilterMTC
	return session.AddThruConnection(ctx, thru.Tag, outputs, inputs, lifecycle, params)
}

// connectionSpec converts a configured connection into resolver terms. Every
// listed id and name becomes its own criterion.
func connectionSpec(conn config.Connection) ([]resolver.Criterion, resolver.Mode, resolver.Filter, error) {
	mode, err := resolver.ParseMode(conn.Mode)
	if err != nil {
		return nil, mode, resolver.Filter{}, err
	}
	var criteria []resolver.Criterion
	for _, id := range conn.UniqueIDs {
		criteria = append(criteria, resolver.ByUniqueID(transport.UniqueID(id)))
	}
	for _, name := range conn.Names {
		criteria = append(criteria, resolver.ByName(name))
	}
	for _, name := range conn.DisplayNames {
		criteria = append(criteria, resolver.ByDisplayName(name))
	}
	filter := resolver.DefaultFilter()
	filter.Owned = conn.IncludeOwned
	for _, name := range conn.ExcludeNames {
		filter.Exclude = append(filter.Exclude, resolver.ByName(name))
	}
	return criteria, mode, filter, nil
}

func endpointsByDisplayName(candidates []transport.EndpointRecord, names []string) ([]transport.EndpointRecord, []string) {
	var (
		found   []transport.EndpointRecord
		missing []string
	)
	for _, name := range names {
		criterion := resolver.ByDisplayName(name)
		matched := false
		for _, ep := range candidates {
			if criterion.Matches(ep) {
				found = append(found, ep)
				matched = true
				break
			}
		}
		if !matched {
			missing = append(missing, name)
		}
	}
	return found, missing
}

func portName(port config.VirtualPort) string {
	if name := strings.TrimSpace(port.Name); name != "" {
		return name
	}
	return port.Tag
}

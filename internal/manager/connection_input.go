package manager

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"midisession/internal/cache"
	"midisession/internal/logging"
	"midisession/internal/resolver"
	"midisession/internal/transport"
)

// connection is the shared half of input and output connections.
type connection struct {
	resourceTag string
	criteria    []resolver.Criterion
	mode        resolver.Mode
	filter      resolver.Filter

	port    transport.Handle
	bound   []transport.EndpointRecord
	lastErr error
}

func (c *connection) tag() string { return c.resourceTag }

func (c *connection) summary(kind ResourceKind, name string) ResourceInfo {
	criteria := make([]string, 0, len(c.criteria))
	for _, cr := range c.criteria {
		criteria = append(criteria, cr.String())
	}
	return ResourceInfo{
		Kind:      kind,
		Tag:       c.resourceTag,
		Name:      name,
		Handle:    c.port,
		Realized:  c.port != transport.NoHandle,
		Mode:      c.mode.String(),
		Criteria:  criteria,
		Bound:     append([]transport.EndpointRecord(nil), c.bound...),
		LastError: errorString(c.lastErr),
	}
}

// reconcile re-resolves against candidates and applies the difference.
func (c *connection) reconcile(m *Manager, kind ResourceKind, candidates []transport.EndpointRecord, bind, unbind resolver.BindFunc) error {
	if c.port == transport.NoHandle {
		return nil
	}
	before := len(c.bound)
	wanted := resolver.Resolve(c.criteria, c.mode, c.filter, candidates, m.isOwned)
	outcome, err := resolver.Reconcile(c.bound, wanted, bind, unbind)
	c.bound = outcome.Bound
	c.lastErr = err

	if outcome.Added+outcome.Removed+outcome.Failures == 0 {
		return nil
	}
	m.metrics.BindingsReconciled(kind.String(), outcome.Added, outcome.Removed, outcome.Failures)
	logger := m.resourceLogger(kind, c.resourceTag)
	logger.Info("connection reconciled",
		logging.Int("bound", len(c.bound)),
		logging.Int("added", outcome.Added),
		logging.Int("removed", outcome.Removed),
		logging.Int("failed", outcome.Failures),
	)
	if before > 0 && len(c.bound) == 0 {
		logger.Debug("connection has no bound endpoints")
	}
	return err
}

type inputConnection struct {
	connection
	handler PacketHandler
}

func (c *inputConnection) kind() ResourceKind { return KindInputConnection }

func (c *inputConnection) info() ResourceInfo {
	return c.summary(KindInputConnection, "")
}

func (c *inputConnection) realize(ctx context.Context, m *Manager) error {
	return c.refresh(m, m.cache.Load())
}

// openPort creates the connection's port unless it already has one.
func (c *inputConnection) openPort(m *Manager) error {
	if c.port != transport.NoHandle {
		return nil
	}
	port, err := m.tr.CreateInputPort(m.client, m.portName(c.resourceTag), m.packetReceiver(c.handler))
	if err != nil {
		c.lastErr = fmt.Errorf("create input port for %q: %w", c.resourceTag, err)
		return c.lastErr
	}
	c.port = port
	c.lastErr = nil
	return nil
}

// refresh binds the connection to the sources currently matching it. A
// connection whose port could not be created retries on every call.
func (c *inputConnection) refresh(m *Manager, snap *cache.Snapshot) error {
	if err := c.openPort(m); err != nil {
		return err
	}
	port := c.port
	return c.reconcile(m, KindInputConnection, snap.Endpoints(transport.Output),
		func(ep transport.EndpointRecord) error { return m.tr.ConnectSource(port, ep.Handle) },
		func(ep transport.EndpointRecord) error { return m.tr.DisconnectSource(port, ep.Handle) },
	)
}

func (c *inputConnection) teardown(m *Manager) error {
	if c.port == transport.NoHandle {
		c.bound = nil
		return nil
	}
	var errs error
	for _, ep := range c.bound {
		errs = multierr.Append(errs, m.tr.DisconnectSource(c.port, ep.Handle))
	}
	errs = multierr.Append(errs, m.tr.DisposePort(c.port))
	c.port = transport.NoHandle
	c.bound = nil
	if errs != nil {
		return fmt.Errorf("tear down input connection %q: %w", c.resourceTag, errs)
	}
	return nil
}

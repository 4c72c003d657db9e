package manager

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"midisession/internal/cache"
	"midisession/internal/transport"
)

type outputConnection struct {
	connection
}

func (c *outputConnection) kind() ResourceKind { return KindOutputConnection }

func (c *outputConnection) info() ResourceInfo {
	return c.summary(KindOutputConnection, "")
}

func (c *outputConnection) realize(ctx context.Context, m *Manager) error {
	return c.refresh(m, m.cache.Load())
}

func (c *outputConnection) openPort(m *Manager) error {
	if c.port != transport.NoHandle {
		return nil
	}
	port, err := m.tr.CreateOutputPort(m.client, m.portName(c.resourceTag))
	if err != nil {
		c.lastErr = fmt.Errorf("create output port for %q: %w", c.resourceTag, err)
		return c.lastErr
	}
	c.port = port
	c.lastErr = nil
	return nil
}

// refresh tracks the destinations currently matching the connection. Output
// ports address destinations per send, so binding is bookkeeping only.
func (c *outputConnection) refresh(m *Manager, snap *cache.Snapshot) error {
	if err := c.openPort(m); err != nil {
		return err
	}
	track := func(transport.EndpointRecord) error { return nil }
	return c.reconcile(m, KindOutputConnection, snap.Endpoints(transport.Input), track, track)
}

// send delivers data to every bound destination, continuing past failures.
func (c *outputConnection) send(m *Manager, data []byte) error {
	if c.port == transport.NoHandle {
		return fmt.Errorf("output connection %q: %w", c.resourceTag, ErrNotRealized)
	}
	var errs error
	for _, ep := range c.bound {
		if err := m.tr.Send(c.port, ep.Handle, data); err != nil {
			errs = multierr.Append(errs, transport.Wrap(transport.ErrPartial, endpointName(ep), "send", "", err))
		}
	}
	return errs
}

func (c *outputConnection) teardown(m *Manager) error {
	c.bound = nil
	if c.port == transport.NoHandle {
		return nil
	}
	port := c.port
	c.port = transport.NoHandle
	if err := m.tr.DisposePort(port); err != nil {
		return fmt.Errorf("tear down output connection %q: %w", c.resourceTag, err)
	}
	return nil
}

func endpointName(ep transport.EndpointRecord) string {
	if ep.DisplayName != "" {
		return ep.DisplayName
	}
	return ep.Name
}

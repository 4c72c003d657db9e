package manager

import (
	"context"
	"fmt"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

// Packet is one MIDI payload delivered to an application handler.
type Packet struct {
	Data      []byte
	Timestamp uint64
	// Source is the endpoint the packet came from. It is the zero record
	// when the transport does not report one or the endpoint is unknown.
	Source transport.EndpointRecord
}

// PacketHandler runs on a transport goroutine and must not block.
type PacketHandler func(Packet)

// virtualPort is the shared half of virtual inputs and outputs.
type virtualPort struct {
	resourceTag string
	name        string
	dir         transport.Direction
	cell        IDCell

	handle  transport.Handle
	id      transport.UniqueID
	lastErr error
}

type virtualInput struct {
	virtualPort
	handler PacketHandler
}

type virtualOutput struct {
	virtualPort
}

func (v *virtualInput) kind() ResourceKind  { return KindVirtualInput }
func (v *virtualOutput) kind() ResourceKind { return KindVirtualOutput }
func (v *virtualPort) tag() string          { return v.resourceTag }

func (v *virtualInput) realize(ctx context.Context, m *Manager) error {
	return v.create(m, KindVirtualInput, m.packetReceiver(v.handler))
}

func (v *virtualOutput) realize(ctx context.Context, m *Manager) error {
	return v.create(m, KindVirtualOutput, nil)
}

func (v *virtualInput) info() ResourceInfo  { return v.summary(KindVirtualInput) }
func (v *virtualOutput) info() ResourceInfo { return v.summary(KindVirtualOutput) }

func (v *virtualPort) summary(kind ResourceKind) ResourceInfo {
	return ResourceInfo{
		Kind:      kind,
		Tag:       v.resourceTag,
		Name:      v.name,
		Handle:    v.handle,
		UniqueID:  v.id,
		Realized:  v.handle != transport.NoHandle,
		LastError: errorString(v.lastErr),
	}
}

// create publishes the port and settles its unique id: an already-live hint
// is discarded, the actual id is read back after creation, and the id is
// written to the cell.
func (v *virtualPort) create(m *Manager, kind ResourceKind, receive transport.ReceiveFunc) error {
	logger := m.resourceLogger(kind, v.resourceTag)
	subject := kind.String() + " " + v.resourceTag

	hint := transport.InvalidUniqueID
	if v.cell != nil {
		if stored, ok := v.cell.Load(); ok {
			hint = stored
		}
	}
	if hint.Valid() && m.idIsLive(hint) {
		logger.Debug("discarding persisted unique id; already in use",
			logging.Int64(logging.FieldUniqueID, int64(hint)),
		)
		hint = transport.InvalidUniqueID
	}

	h, _, err := m.tr.CreateVirtualPort(m.client, v.name, v.dir, hint, receive)
	if err != nil {
		v.lastErr = fmt.Errorf("create %s: %w", subject, err)
		return v.lastErr
	}

	raw, err := m.tr.IntProperty(h, transport.PropUniqueID)
	id := transport.UniqueID(raw)
	if err != nil || !id.Valid() {
		if disposeErr := m.tr.DisposePort(h); disposeErr != nil {
			logger.Debug("dispose after failed read-back", logging.Error(disposeErr))
		}
		v.lastErr = transport.Wrap(transport.ErrReadBack, subject, "read unique id", "", err)
		return v.lastErr
	}

	v.handle = h
	v.id = id
	v.lastErr = nil
	m.own(id)

	if m.model != "" {
		if err := m.tr.SetStringProperty(h, transport.PropModel, m.model); err != nil {
			logging.WarnWithContext(logger, "could not set model on virtual port", "virtual_port_property_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "other applications see no model for this port"),
			)
		}
	}
	if m.manufacturer != "" {
		if err := m.tr.SetStringProperty(h, transport.PropManufacturer, m.manufacturer); err != nil {
			logging.WarnWithContext(logger, "could not set manufacturer on virtual port", "virtual_port_property_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "other applications see no manufacturer for this port"),
			)
		}
	}

	if v.cell != nil {
		if err := v.cell.Store(id); err != nil {
			logging.WarnWithContext(logger, "could not persist unique id", "unique_id_persist_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "the port may get a different id next session"),
			)
		}
	}

	logger.Info("virtual port created",
		logging.String("name", v.name),
		logging.Int64(logging.FieldUniqueID, int64(id)),
		logging.Bool("hint_honored", hint.Valid() && hint == id),
	)
	return nil
}

func (v *virtualPort) teardown(m *Manager) error {
	if v.handle == transport.NoHandle {
		return nil
	}
	h := v.handle
	v.handle = transport.NoHandle
	m.disown(v.id, h)
	if err := m.tr.DisposePort(h); err != nil {
		return fmt.Errorf("dispose virtual port %q: %w", v.resourceTag, err)
	}
	return nil
}

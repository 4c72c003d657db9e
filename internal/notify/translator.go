package notify

import (
	"log/slog"

	"midisession/internal/cache"
	"midisession/internal/logging"
	"midisession/internal/transport"
)

// PropertyReader performs live property lookups.
type PropertyReader interface {
	StringProperty(h transport.Handle, key string) (string, error)
	IntProperty(h transport.Handle, key string) (int32, error)
}

// Translator turns decoded raw notifications into typed ones.
type Translator struct {
	props  PropertyReader
	logger *slog.Logger
}

// NewTranslator builds a translator that resolves live objects through props.
func NewTranslator(props PropertyReader, logger *slog.Logger) *Translator {
	return &Translator{props: props, logger: logging.NewComponentLogger(logger, "notify")}
}

// NeedsRebuild reports whether a raw kind may have changed topology.
func NeedsRebuild(kind transport.MessageKind) bool {
	switch kind {
	case transport.MsgSetupChanged, transport.MsgObjectAdded, transport.MsgObjectRemoved:
		return true
	default:
		return false
	}
}

// Translate converts raw into a Notification. stale must be the snapshot as
// it stood before this notification was processed; it is the only source of
// metadata for removed objects. ok is false when the event is dropped.
func (t *Translator) Translate(raw transport.RawNotification, decoded bool, stale *cache.Snapshot) (Notification, bool) {
	if !decoded {
		return Other{RawID: int32(raw.Kind)}, true
	}
	switch raw.Kind {
	case transport.MsgSetupChanged:
		return SetupChanged{}, true

	case transport.MsgObjectAdded:
		child, err := t.live(raw.Child, raw.ChildType)
		if err != nil {
			t.logger.Debug("dropping added notification; object not resolvable",
				logging.Int64("handle", int64(raw.Child)),
				logging.String("object_type", raw.ChildType.String()),
				logging.Error(err),
			)
			return nil, false
		}
		return Added{Parent: t.parentLive(raw), Child: child}, true

	case transport.MsgObjectRemoved:
		child, ok := fromSnapshot(stale, raw.Child, raw.ChildType)
		if !ok {
			t.logger.Debug("dropping removed notification; object not in cache",
				logging.Int64("handle", int64(raw.Child)),
				logging.String("object_type", raw.ChildType.String()),
			)
			return nil, false
		}
		var parent *ObjectSummary
		if raw.Parent != transport.NoHandle {
			if p, ok := fromSnapshot(stale, raw.Parent, raw.ParentType); ok {
				parent = &p
			}
		}
		return Removed{Parent: parent, Child: child}, true

	case transport.MsgPropertyChanged:
		return PropertyChanged{Object: t.resolve(raw.Object, raw.ObjectType, stale), Property: raw.Property}, true

	case transport.MsgThruConnectionsChanged:
		return RelayConnectionsChanged{}, true

	case transport.MsgIOError:
		return DriverError{
			Device: t.resolve(raw.Device, transport.ObjectDevice, stale),
			Err:    transport.Status("driver io", raw.ErrorCode),
		}, true

	default:
		// serial port owner changes, internal start and unknown kinds
		return Other{RawID: int32(raw.Kind)}, true
	}
}

func (t *Translator) parentLive(raw transport.RawNotification) *ObjectSummary {
	if raw.Parent == transport.NoHandle || raw.ParentType == transport.ObjectOther {
		return nil
	}
	p, err := t.live(raw.Parent, raw.ParentType)
	if err != nil {
		return nil
	}
	return &p
}

// resolve prefers a live lookup, then the snapshot, then a bare handle.
func (t *Translator) resolve(h transport.Handle, typ transport.ObjectType, stale *cache.Snapshot) ObjectSummary {
	if s, err := t.live(h, typ); err == nil {
		return s
	}
	if s, ok := fromSnapshot(stale, h, typ); ok {
		return s
	}
	return ObjectSummary{Type: typ, Handle: h}
}

func (t *Translator) live(h transport.Handle, typ transport.ObjectType) (ObjectSummary, error) {
	if t.props == nil {
		return ObjectSummary{}, transport.ErrNotFound
	}
	name, err := t.props.StringProperty(h, transport.PropName)
	if err != nil {
		return ObjectSummary{}, err
	}
	id, err := t.props.IntProperty(h, transport.PropUniqueID)
	if err != nil {
		return ObjectSummary{}, err
	}
	display, err := t.props.StringProperty(h, transport.PropDisplayName)
	if err != nil || display == "" {
		display = name
	}
	return ObjectSummary{Type: typ, Handle: h, UniqueID: transport.UniqueID(id), Name: name, DisplayName: display}, nil
}

func fromSnapshot(s *cache.Snapshot, h transport.Handle, typ transport.ObjectType) (ObjectSummary, bool) {
	if s == nil || h == transport.NoHandle {
		return ObjectSummary{}, false
	}
	switch typ {
	case transport.ObjectSource, transport.ObjectDestination, transport.ObjectExternalSource, transport.ObjectExternalDestination:
		ep, ok := s.Endpoint(h)
		if !ok {
			return ObjectSummary{}, false
		}
		return ObjectSummary{Type: typ, Handle: h, UniqueID: ep.UniqueID, Name: ep.Name, DisplayName: ep.DisplayName}, true
	case transport.ObjectDevice, transport.ObjectExternalDevice:
		d, ok := s.Device(h)
		if !ok {
			return ObjectSummary{}, false
		}
		return ObjectSummary{Type: typ, Handle: h, UniqueID: d.UniqueID, Name: d.Name, DisplayName: d.Name}, true
	case transport.ObjectEntity, transport.ObjectExternalEntity:
		e, ok := s.Entity(h)
		if !ok {
			return ObjectSummary{}, false
		}
		return ObjectSummary{Type: typ, Handle: h, UniqueID: e.UniqueID, Name: e.Name, DisplayName: e.Name}, true
	}
	return ObjectSummary{}, false
}

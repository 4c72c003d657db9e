package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"midisession/internal/cache"
	"midisession/internal/logging"
	"midisession/internal/notify"
	"midisession/internal/resolver"
	"midisession/internal/transport"
)

// Manager is one application session with the host MIDI transport.
type Manager struct {
	tr           transport.Transport
	clientName   string
	model        string
	manufacturer string
	sessionID    string
	baseLogger   *slog.Logger
	logger       *slog.Logger
	metrics      Metrics

	queue      *serialQueue
	dispatch   *dispatcher
	handler    atomic.Pointer[NotificationHandler]
	cache      *cache.Cache
	translator *notify.Translator
	published  atomic.Pointer[resourceIndex]
	closeOnce  sync.Once

	// Owned by the queue goroutine.
	client         transport.Handle
	populated      bool
	owned          map[transport.UniqueID]struct{}
	retired        map[transport.Handle]struct{}
	virtualInputs  *table[*virtualInput]
	virtualOutputs *table[*virtualOutput]
	inputs         *table[*inputConnection]
	outputs        *table[*outputConnection]
	thrus          *table[*thruConnection]
}

// New builds a session over tr. Nothing touches the transport until Start.
// Close must be called to release the session's goroutines.
func New(tr transport.Transport, clientName string, opts ...Option) *Manager {
	m := &Manager{
		tr:             tr,
		clientName:     clientName,
		sessionID:      uuid.NewString(),
		metrics:        nopMetrics{},
		cache:          cache.New(),
		owned:          make(map[transport.UniqueID]struct{}),
		retired:        make(map[transport.Handle]struct{}),
		virtualInputs:  newTable[*virtualInput](KindVirtualInput),
		virtualOutputs: newTable[*virtualOutput](KindVirtualOutput),
		inputs:         newTable[*inputConnection](KindInputConnection),
		outputs:        newTable[*outputConnection](KindOutputConnection),
		thrus:          newTable[*thruConnection](KindThruConnection),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.baseLogger, "manager").With(
		logging.String(logging.FieldSessionID, m.sessionID),
		logging.String(logging.FieldClientName, clientName),
	)
	m.translator = notify.NewTranslator(tr, m.baseLogger)
	m.published.Store(&resourceIndex{byKind: map[ResourceKind]map[string]ResourceInfo{}})
	m.queue = newSerialQueue(m.processBatch)
	m.dispatch = newDispatcher(m.NotificationHandler)
	return m
}

func (m *Manager) ClientName() string   { return m.clientName }
func (m *Manager) Model() string        { return m.model }
func (m *Manager) Manufacturer() string { return m.manufacturer }
func (m *Manager) SessionID() string    { return m.sessionID }

// Start registers the client and populates the object cache. Calling it
// again after success is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	return m.queue.run(ctx, func() error {
		if m.client == transport.NoHandle {
			h, err := m.tr.CreateClient(m.clientName, m.onNotify)
			if err != nil {
				return fmt.Errorf("create client %q: %w", m.clientName, err)
			}
			m.client = h
		} else if m.populated {
			return nil
		}
		snap, err := m.rebuild()
		if err != nil {
			return fmt.Errorf("populate object cache: %w", err)
		}
		m.populated = true
		m.logger.Info("session started",
			logging.Int("devices", len(snap.Devices)),
			logging.Int("inputs", len(snap.Inputs)),
			logging.Int("outputs", len(snap.Outputs)),
		)
		return nil
	})
}

// Close flushes pending work, tears every resource down and disposes the
// client. Persistent thru connections are left in place.
func (m *Manager) Close(ctx context.Context) error {
	err := ErrClosed
	m.closeOnce.Do(func() {
		err = m.queue.close(ctx, m.shutdown)
		m.dispatch.close()
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (m *Manager) shutdown() error {
	errs := m.teardownAll()
	if m.client != transport.NoHandle {
		if err := m.tr.DisposeClient(m.client); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispose client: %w", err))
		}
		m.client = transport.NoHandle
	}
	m.populated = false
	m.cache.Reset()
	m.publish()
	m.logger.Info("session closed")
	return errs
}

// Sync waits until every notification delivered before the call and every
// previously submitted operation has been processed.
func (m *Manager) Sync(ctx context.Context) error {
	return m.queue.run(ctx, func() error { return nil })
}

// SetNotificationHandler installs h; nil removes the handler.
func (m *Manager) SetNotificationHandler(h NotificationHandler) {
	if h == nil {
		m.handler.Store(nil)
		return
	}
	m.handler.Store(&h)
}

// NotificationHandler returns the installed handler or nil.
func (m *Manager) NotificationHandler() NotificationHandler {
	if h := m.handler.Load(); h != nil {
		return *h
	}
	return nil
}

// Snapshot returns the current object cache. It is empty before Start.
func (m *Manager) Snapshot() *cache.Snapshot {
	return m.cache.Load()
}

// Devices returns the devices in the current snapshot.
func (m *Manager) Devices() []transport.DeviceRecord {
	if snap := m.cache.Load(); snap != nil {
		return snap.Devices
	}
	return nil
}

// Endpoints returns the endpoints of dir in the current snapshot.
func (m *Manager) Endpoints(dir transport.Direction) []transport.EndpointRecord {
	return m.cache.Load().Endpoints(dir)
}

// AddVirtualInput publishes a virtual destination that delivers incoming
// packets to handler and returns its unique id.
func (m *Manager) AddVirtualInput(ctx context.Context, name, tag string, id IDCell, handler PacketHandler) (transport.UniqueID, error) {
	v := &virtualInput{virtualPort: virtualPort{resourceTag: tag, name: name, dir: transport.Input, cell: id}, handler: handler}
	err := m.started(ctx, func() error { return addResource(ctx, m, m.virtualInputs, v) })
	return v.id, err
}

// AddVirtualOutput publishes a virtual source and returns its unique id.
func (m *Manager) AddVirtualOutput(ctx context.Context, name, tag string, id IDCell) (transport.UniqueID, error) {
	v := &virtualOutput{virtualPort: virtualPort{resourceTag: tag, name: name, dir: transport.Output, cell: id}}
	err := m.started(ctx, func() error { return addResource(ctx, m, m.virtualOutputs, v) })
	return v.id, err
}

// AddInputConnection receives from every source matching criteria, following
// them as they appear and disappear.
func (m *Manager) AddInputConnection(ctx context.Context, tag string, criteria []resolver.Criterion, mode resolver.Mode, filter resolver.Filter, handler PacketHandler) error {
	c := &inputConnection{connection: newConnection(tag, criteria, mode, filter), handler: handler}
	return m.started(ctx, func() error { return addResource(ctx, m, m.inputs, c) })
}

// AddOutputConnection tracks every destination matching criteria.
func (m *Manager) AddOutputConnection(ctx context.Context, tag string, criteria []resolver.Criterion, mode resolver.Mode, filter resolver.Filter) error {
	c := &outputConnection{connection: newConnection(tag, criteria, mode, filter)}
	return m.started(ctx, func() error { return addResource(ctx, m, m.outputs, c) })
}

func newConnection(tag string, criteria []resolver.Criterion, mode resolver.Mode, filter resolver.Filter) connection {
	return connection{
		resourceTag: tag,
		criteria:    append([]resolver.Criterion(nil), criteria...),
		mode:        mode,
		filter:      resolver.Filter{Owned: filter.Owned, Exclude: append([]resolver.Criterion(nil), filter.Exclude...)},
	}
}

// AddThruConnection creates a relay from up to eight outputs to up to eight
// inputs. Persistent relays are created in the host and not tracked here.
func (m *Manager) AddThruConnection(ctx context.Context, tag string, outputs, inputs []transport.EndpointRecord, lifecycle ThruLifecycle, params ThruParams) error {
	t := newThruConnection(tag, outputs, inputs, lifecycle, params)
	return m.started(ctx, func() error {
		if lifecycle.persistent() {
			if err := t.realize(ctx, m); err != nil {
				return err
			}
			m.resourceLogger(KindThruConnection, tag).Info("persistent thru connection created",
				logging.String("owner_id", lifecycle.ownerID),
				logging.Int("sources", len(t.sources)),
				logging.Int("destinations", len(t.destinations)),
			)
			return nil
		}
		return addResource(ctx, m, m.thrus, t)
	})
}

// PersistentThruConnections lists the relays ownerID left in the host.
func (m *Manager) PersistentThruConnections(ctx context.Context, ownerID string) ([]transport.Handle, error) {
	var out []transport.Handle
	err := m.queue.run(ctx, func() error {
		if !m.tr.Capabilities().PersistentRelays {
			return transport.Wrap(transport.ErrNotSupported, "persistent thru connections", "list", "", nil)
		}
		handles, err := m.tr.FindPersistentRelays(ownerID)
		out = handles
		return err
	})
	return out, err
}

// RemovePersistentThruConnections disposes every relay owned by ownerID. It
// keeps going after individual failures and reports how many were removed.
func (m *Manager) RemovePersistentThruConnections(ctx context.Context, ownerID string) (int, error) {
	removed := 0
	err := m.queue.run(ctx, func() error {
		if !m.tr.Capabilities().PersistentRelays {
			return transport.Wrap(transport.ErrNotSupported, "persistent thru connections", "remove", "", nil)
		}
		handles, err := m.tr.FindPersistentRelays(ownerID)
		if err != nil {
			return err
		}
		var errs error
		for _, h := range handles {
			if err := m.tr.DisposeRelay(h); err != nil {
				errs = multierr.Append(errs, transport.Wrap(transport.ErrPartial, "relay "+ownerID, "dispose", "", err))
				continue
			}
			removed++
		}
		m.logger.Info("persistent thru connections removed",
			logging.String("owner_id", ownerID),
			logging.Int("removed", removed),
			logging.Int("failed", len(handles)-removed),
		)
		return errs
	})
	return removed, err
}

// Remove tears down one tagged resource of kind, or all of them.
func (m *Manager) Remove(ctx context.Context, kind ResourceKind, target RemoveTarget) error {
	return m.queue.run(ctx, func() error {
		var err error
		switch kind {
		case KindVirtualInput:
			err = removeFrom(m, m.virtualInputs, target)
		case KindVirtualOutput:
			err = removeFrom(m, m.virtualOutputs, target)
		case KindInputConnection:
			err = removeFrom(m, m.inputs, target)
		case KindOutputConnection:
			err = removeFrom(m, m.outputs, target)
		case KindThruConnection:
			err = removeFrom(m, m.thrus, target)
		default:
			err = fmt.Errorf("remove: unknown resource kind %d", int(kind))
		}
		m.publish()
		return err
	})
}

// RemoveAll clears every table. The notification handler, the client
// identity, persisted id cells and persistent thru connections are kept.
func (m *Manager) RemoveAll(ctx context.Context) error {
	return m.queue.run(ctx, func() error {
		err := m.teardownAll()
		m.publish()
		return err
	})
}

// SendOutput sends data to every destination an output connection is bound to.
func (m *Manager) SendOutput(ctx context.Context, tag string, data []byte) error {
	return m.started(ctx, func() error {
		c, ok := m.outputs.get(tag)
		if !ok {
			return fmt.Errorf("output connection %q: %w", tag, ErrUnknownTag)
		}
		return c.send(m, data)
	})
}

// EmitVirtual emits data from a virtual output.
func (m *Manager) EmitVirtual(ctx context.Context, tag string, data []byte) error {
	return m.started(ctx, func() error {
		v, ok := m.virtualOutputs.get(tag)
		if !ok {
			return fmt.Errorf("virtual output %q: %w", tag, ErrUnknownTag)
		}
		if v.handle == transport.NoHandle {
			return fmt.Errorf("virtual output %q: %w", tag, ErrNotRealized)
		}
		return m.tr.Emit(v.handle, data)
	})
}

// Resources lists every tracked resource ordered by kind and tag.
func (m *Manager) Resources() []ResourceInfo {
	ix := m.published.Load()
	return append([]ResourceInfo(nil), ix.all...)
}

func (m *Manager) VirtualInput(tag string) (ResourceInfo, bool) {
	return m.published.Load().lookup(KindVirtualInput, tag)
}

func (m *Manager) VirtualOutput(tag string) (ResourceInfo, bool) {
	return m.published.Load().lookup(KindVirtualOutput, tag)
}

func (m *Manager) InputConnection(tag string) (ResourceInfo, bool) {
	return m.published.Load().lookup(KindInputConnection, tag)
}

func (m *Manager) OutputConnection(tag string) (ResourceInfo, bool) {
	return m.published.Load().lookup(KindOutputConnection, tag)
}

func (m *Manager) ThruConnection(tag string) (ResourceInfo, bool) {
	return m.published.Load().lookup(KindThruConnection, tag)
}

// started runs fn on the queue once a client exists.
func (m *Manager) started(ctx context.Context, fn func() error) error {
	return m.queue.run(ctx, func() error {
		if m.client == transport.NoHandle {
			return ErrNotStarted
		}
		return fn()
	})
}

// addResource replaces any resource holding the same tag, inserts r, then
// realizes it. r stays in the table when realization fails.
func addResource[R resource](ctx context.Context, m *Manager, t *table[R], r R) error {
	if old, ok := t.get(r.tag()); ok {
		if err := old.teardown(m); err != nil {
			logging.WarnWithContext(m.resourceLogger(t.kind, r.tag()), "tear down of replaced resource failed", "resource_replace_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the old transport object may linger until the session closes"),
			)
		}
	}
	t.put(r)
	err := r.realize(ctx, m)
	if err != nil {
		logging.WarnWithContext(m.resourceLogger(t.kind, r.tag()), "resource realization failed", "resource_realize_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the resource stays registered without a working transport object"),
			logging.String(logging.FieldErrorHint, "remove and re-add the resource once the cause is fixed"),
		)
	}
	m.publish()
	return err
}

func removeFrom[R resource](m *Manager, t *table[R], target RemoveTarget) error {
	if !target.all {
		r, ok := t.get(target.tag)
		if !ok {
			return fmt.Errorf("%s %q: %w", t.kind, target.tag, ErrUnknownTag)
		}
		t.delete(target.tag)
		return r.teardown(m)
	}
	var errs error
	for _, r := range t.sorted() {
		t.delete(r.tag())
		errs = multierr.Append(errs, r.teardown(m))
	}
	return errs
}

// teardownAll empties the tables, connections before the ports they may
// reference.
func (m *Manager) teardownAll() error {
	return multierr.Combine(
		removeFrom(m, m.thrus, All()),
		removeFrom(m, m.outputs, All()),
		removeFrom(m, m.inputs, All()),
		removeFrom(m, m.virtualOutputs, All()),
		removeFrom(m, m.virtualInputs, All()),
	)
}

// onNotify runs on a transport thread: copy and hand off.
func (m *Manager) onNotify(raw []byte) {
	m.queue.push(append([]byte(nil), raw...))
}

func (m *Manager) processBatch(batch [][]byte) {
	if m.client == transport.NoHandle {
		return
	}
	stale := m.cache.Load()
	published := make([]notify.Notification, 0, len(batch))
	needsRebuild := false
	for _, raw := range batch {
		decodedRaw, ok := transport.DecodeNotification(raw)
		if ok && notify.NeedsRebuild(decodedRaw.Kind) {
			needsRebuild = true
		}
		n, keep := m.translator.Translate(decodedRaw, ok, stale)
		if !keep {
			m.metrics.NotificationDropped(rawKindLabel(decodedRaw.Kind))
			continue
		}
		m.metrics.NotificationProcessed(n.Kind())
		published = append(published, n)
	}

	if needsRebuild {
		if snap, err := m.rebuild(); err == nil {
			m.refreshConnections(snap)
			m.publish()
		}
	}
	for _, n := range published {
		m.logger.Debug("notification", logging.String(logging.FieldNotification, n.Kind()), logging.String("detail", n.String()))
		m.dispatch.push(n)
	}
}

func (m *Manager) rebuild() (*cache.Snapshot, error) {
	start := time.Now()
	snap, err := m.cache.Rebuild(m.tr, m.isOwned)
	m.metrics.CacheRebuilt(time.Since(start), err)
	if err != nil {
		logging.WarnWithContext(m.logger, "object cache rebuild failed", "cache_rebuild_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "connections keep their previous bindings until the next change"),
		)
		return nil, err
	}
	clear(m.retired)
	return snap, nil
}

func (m *Manager) refreshConnections(snap *cache.Snapshot) {
	for _, c := range m.inputs.sorted() {
		if err := c.refresh(m, snap); err != nil {
			logging.WarnWithContext(m.resourceLogger(KindInputConnection, c.tag()), "input connection not fully bound", "connection_bind_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some matching sources are not being received; retried on the next topology change"),
			)
		}
	}
	for _, c := range m.outputs.sorted() {
		if err := c.refresh(m, snap); err != nil {
			logging.WarnWithContext(m.resourceLogger(KindOutputConnection, c.tag()), "output connection not fully bound", "connection_bind_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "retried on the next topology change"),
			)
		}
	}
}

// publish stores an immutable copy of the tables for lock-free readers.
func (m *Manager) publish() {
	ix := &resourceIndex{byKind: make(map[ResourceKind]map[string]ResourceInfo, len(resourceKinds))}
	lists := [][]ResourceInfo{
		m.virtualInputs.infos(),
		m.virtualOutputs.infos(),
		m.inputs.infos(),
		m.outputs.infos(),
		m.thrus.infos(),
	}
	counts := make(map[string]int, len(resourceKinds))
	for i, kind := range resourceKinds {
		byTag := make(map[string]ResourceInfo, len(lists[i]))
		for _, info := range lists[i] {
			byTag[info.Tag] = info
		}
		ix.byKind[kind] = byTag
		ix.all = append(ix.all, lists[i]...)
		counts[kind.String()] = len(lists[i])
	}
	m.published.Store(ix)
	m.metrics.ResourcesChanged(counts)
}

// isOwned reports whether ep is a virtual port of this session, including
// ones disposed since the last rebuild.
func (m *Manager) isOwned(ep transport.EndpointRecord) bool {
	if _, retired := m.retired[ep.Handle]; retired {
		return true
	}
	_, ok := m.owned[ep.UniqueID]
	return ok && ep.UniqueID.Valid()
}

func (m *Manager) own(id transport.UniqueID) {
	m.owned[id] = struct{}{}
}

func (m *Manager) disown(id transport.UniqueID, h transport.Handle) {
	delete(m.owned, id)
	m.retired[h] = struct{}{}
}

// idIsLive reports whether id belongs to an endpoint other than one this
// session has just disposed.
func (m *Manager) idIsLive(id transport.UniqueID) bool {
	ep, ok := m.cache.Load().EndpointByUniqueID(id)
	if !ok {
		return false
	}
	_, retired := m.retired[ep.Handle]
	return !retired
}

// packetReceiver adapts a PacketHandler to the transport callback, resolving
// the source endpoint from the cache.
func (m *Manager) packetReceiver(handler PacketHandler) transport.ReceiveFunc {
	if handler == nil {
		return nil
	}
	return func(p transport.Packet) {
		pkt := Packet{Data: append([]byte(nil), p.Data...), Timestamp: p.Timestamp}
		if p.Source != transport.NoHandle {
			if ep, ok := m.cache.Load().Endpoint(p.Source); ok {
				pkt.Source = ep
			} else {
				pkt.Source = transport.EndpointRecord{Handle: p.Source}
			}
		}
		handler(pkt)
	}
}

func (m *Manager) portName(tag string) string {
	return m.clientName + " " + tag
}

func (m *Manager) resourceLogger(kind ResourceKind, tag string) *slog.Logger {
	return m.logger.With(logging.Args(logging.ResourceAttrs(kind.String(), tag)...)...)
}

func rawKindLabel(kind transport.MessageKind) string {
	switch kind {
	case transport.MsgObjectAdded:
		return notify.KindAdded
	case transport.MsgObjectRemoved:
		return notify.KindRemoved
	default:
		return notify.KindOther
	}
}

package gomiditransport_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"gitlab.com/gomidi/midi/v2/drivers"

	"midisession/internal/testsupport"
	"midisession/internal/transport"
	"midisession/internal/transport/gomiditransport"
)

const pollInterval = time.Second

type rawLog struct {
	mu    sync.Mutex
	notes []transport.RawNotification
}

func (l *rawLog) notify(raw []byte) {
	n, _ := transport.DecodeNotification(raw)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, n)
}

func (l *rawLog) kinds() []transport.MessageKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]transport.MessageKind, 0, len(l.notes))
	for _, n := range l.notes {
		out = append(out, n.Kind)
	}
	return out
}

func newTransport(t *testing.T, drv drivers.Driver) (*gomiditransport.Transport, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	tr, err := gomiditransport.New(drv, gomiditransport.WithClock(clk), gomiditransport.WithPollInterval(pollInterval))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr, clk
}

func endpointNamed(t *testing.T, tr transport.Transport, display string) (transport.EndpointRecord, bool) {
	t.Helper()
	eps, err := tr.Endpoints()
	if err != nil {
		t.Fatalf("Endpoints: %v", err)
	}
	for _, ep := range eps {
		if ep.DisplayName == display {
			return ep, true
		}
	}
	return transport.EndpointRecord{}, false
}

func TestInitialEnumerationGroupsPortsByDevice(t *testing.T) {
	drv := &fakeDriver{}
	drv.addIn("Keystation 49:Keystation 49 MIDI 1 20:0")
	drv.addOut("Keystation 49:Keystation 49 MIDI 1 20:0")
	drv.addOut("Midi Through:Midi Through Port-0 14:0")

	tr, _ := newTransport(t, drv)

	devices, err := tr.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", devices)
	}
	source, ok := endpointNamed(t, tr, "Keystation 49 MIDI 1")
	if !ok {
		t.Fatal("keystation endpoint missing")
	}
	eps, _ := tr.Endpoints()
	var sameDevice int
	for _, ep := range eps {
		if ep.Device == source.Device {
			sameDevice++
		}
	}
	if sameDevice != 2 {
		t.Fatalf("expected source and destination on one device, got %d", sameDevice)
	}
	if _, ok := endpointNamed(t, tr, "Midi Through Port-0"); !ok {
		t.Fatalf("through port missing from %+v", eps)
	}
	if !source.UniqueID.Valid() {
		t.Fatalf("expected derived unique id, got %d", source.UniqueID)
	}
}

func TestUniqueIDsStableAcrossReconnect(t *testing.T) {
	drv := &fakeDriver{}
	drv.addIn("Synth:Synth Out")
	tr, clk := newTransport(t, drv)

	before, ok := endpointNamed(t, tr, "Synth Out")
	if !ok {
		t.Fatal("endpoint missing")
	}

	drv.removeIn("Synth:Synth Out")
	testsupport.WaitFor(t, time.Second, func() bool {
		clk.Add(pollInterval)
		_, ok := endpointNamed(t, tr, "Synth Out")
		return !ok
	})
	drv.addIn("Synth:Synth Out")
	testsupport.WaitFor(t, time.Second, func() bool {
		clk.Add(pollInterval)
		_, ok := endpointNamed(t, tr, "Synth Out")
		return ok
	})

	after, _ := endpointNamed(t, tr, "Synth Out")
	if after.UniqueID != before.UniqueID {
		t.Fatalf("unique id changed across reconnect: %d -> %d", before.UniqueID, after.UniqueID)
	}
	if after.Handle == before.Handle {
		t.Fatal("expected a fresh handle after reconnect")
	}
}

func TestRescanPublishesDifferences(t *testing.T) {
	drv := &fakeDriver{}
	tr, _ := newTransport(t, drv)

	var log rawLog
	if _, err := tr.CreateClient("watcher", log.notify); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	drv.addIn("Pad:Pad Out")
	if err := tr.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	want := []transport.MessageKind{transport.MsgObjectAdded, transport.MsgObjectAdded, transport.MsgSetupChanged}
	if got := log.kinds(); !equalKinds(got, want) {
		t.Fatalf("after add got %v, want %v", got, want)
	}

	if err := tr.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if got := log.kinds(); len(got) != len(want) {
		t.Fatalf("unchanged rescan published %v", got[len(want):])
	}

	drv.removeIn("Pad:Pad Out")
	if err := tr.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	want = append(want, transport.MsgObjectRemoved, transport.MsgObjectRemoved, transport.MsgSetupChanged)
	if got := log.kinds(); !equalKinds(got, want) {
		t.Fatalf("after remove got %v, want %v", got, want)
	}
	if devices, _ := tr.Devices(); len(devices) != 0 {
		t.Fatalf("expected empty device list, got %+v", devices)
	}
}

func TestRescanReportsDriverErrors(t *testing.T) {
	drv := &fakeDriver{}
	tr, _ := newTransport(t, drv)
	drv.mu.Lock()
	drv.failIns = errors.New("sequencer gone")
	drv.mu.Unlock()

	if err := tr.Rescan(); !errors.Is(err, transport.ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestInputPortReceivesFromHardwareSource(t *testing.T) {
	drv := &fakeDriver{}
	keys := drv.addIn("Keys:Keys Out")
	tr, _ := newTransport(t, drv)

	c, _ := tr.CreateClient("app", nil)
	var (
		mu  sync.Mutex
		got []transport.Packet
	)
	p, err := tr.CreateInputPort(c, "app in", func(pkt transport.Packet) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, pkt)
	})
	if err != nil {
		t.Fatalf("CreateInputPort: %v", err)
	}
	source, _ := endpointNamed(t, tr, "Keys Out")
	if err := tr.ConnectSource(p, source.Handle); err != nil {
		t.Fatalf("ConnectSource: %v", err)
	}
	if !keys.play([]byte{0x90, 60, 100}) {
		t.Fatal("expected listener on connected source")
	}
	mu.Lock()
	if len(got) != 1 || got[0].Source != source.Handle || !bytes.Equal(got[0].Data, []byte{0x90, 60, 100}) {
		t.Fatalf("unexpected packets %+v", got)
	}
	mu.Unlock()

	if err := tr.DisconnectSource(p, source.Handle); err != nil {
		t.Fatalf("DisconnectSource: %v", err)
	}
	if keys.listening() {
		t.Fatal("expected listener released once no port reads the source")
	}
}

func TestSendOpensHardwareDestination(t *testing.T) {
	drv := &fakeDriver{}
	synth := drv.addOut("Synth:Synth In")
	tr, _ := newTransport(t, drv)

	c, _ := tr.CreateClient("app", nil)
	p, _ := tr.CreateOutputPort(c, "app out")
	dest, _ := endpointNamed(t, tr, "Synth In")

	if err := tr.Send(p, dest.Handle, []byte{0xB0, 7, 90}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !synth.IsOpen() {
		t.Fatal("expected destination opened on first send")
	}
	if sent := synth.messages(); len(sent) != 1 || !bytes.Equal(sent[0], []byte{0xB0, 7, 90}) {
		t.Fatalf("unexpected sent %v", sent)
	}

	missing := transport.Handle(0)
	if err := tr.Send(p, missing, []byte{0xF8}); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVirtualPortsRequireDriverSupport(t *testing.T) {
	tr, _ := newTransport(t, &fakeDriver{})
	c, _ := tr.CreateClient("app", nil)
	if _, _, err := tr.CreateVirtualPort(c, "app virtual", transport.Input, 0, nil); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestVirtualPortLifecycle(t *testing.T) {
	drv := &virtualDriver{fakeDriver: &fakeDriver{}}
	tr, _ := newTransport(t, drv)

	var log rawLog
	c, _ := tr.CreateClient("app", log.notify)

	var (
		mu       sync.Mutex
		received [][]byte
	)
	vin, id, err := tr.CreateVirtualPort(c, "app sink", transport.Input, 4242, func(pkt transport.Packet) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, pkt.Data)
	})
	if err != nil {
		t.Fatalf("CreateVirtualPort: %v", err)
	}
	if id != 4242 {
		t.Fatalf("expected hint honored, got %d", id)
	}
	if err := tr.SetStringProperty(vin, transport.PropModel, "model"); err != nil {
		t.Fatalf("SetStringProperty: %v", err)
	}
	if got, _ := tr.StringProperty(vin, transport.PropModel); got != "model" {
		t.Fatalf("model = %q", got)
	}

	_, second, err := tr.CreateVirtualPort(c, "app sink 2", transport.Input, 4242, nil)
	if err != nil {
		t.Fatalf("CreateVirtualPort: %v", err)
	}
	if second == 4242 {
		t.Fatal("colliding hint must be replaced")
	}

	// The driver lists our own virtual port too; it must not appear twice.
	drv.addOut("midisession:app sink 128:0")
	if err := tr.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	eps, _ := tr.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("expected only the two virtual endpoints, got %+v", eps)
	}

	if !drv.vins[0].play([]byte{0x90, 1, 2}) {
		t.Fatal("virtual input not listening")
	}
	mu.Lock()
	if len(received) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(received))
	}
	mu.Unlock()

	if err := tr.DisposePort(vin); err != nil {
		t.Fatalf("DisposePort: %v", err)
	}
	if drv.vins[0].IsOpen() {
		t.Fatal("virtual port left open")
	}
	kinds := log.kinds()
	if kinds[len(kinds)-2] != transport.MsgObjectRemoved || kinds[len(kinds)-1] != transport.MsgSetupChanged {
		t.Fatalf("unexpected tail %v", kinds)
	}
}

func TestEmitReachesLocalPortsAndSubscribers(t *testing.T) {
	drv := &virtualDriver{fakeDriver: &fakeDriver{}}
	tr, _ := newTransport(t, drv)
	c, _ := tr.CreateClient("app", nil)

	vout, _, err := tr.CreateVirtualPort(c, "app source", transport.Output, 0, nil)
	if err != nil {
		t.Fatalf("CreateVirtualPort: %v", err)
	}
	var count int
	var mu sync.Mutex
	p, _ := tr.CreateInputPort(c, "loop", func(transport.Packet) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err := tr.ConnectSource(p, vout); err != nil {
		t.Fatalf("ConnectSource: %v", err)
	}
	if err := tr.Emit(vout, []byte{0xFA}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("local port got %d packets", count)
	}
	if sent := drv.vouts[0].messages(); len(sent) != 1 {
		t.Fatalf("virtual output sent %v", sent)
	}
}

func TestRelayAppliesParams(t *testing.T) {
	drv := &fakeDriver{}
	keys := drv.addIn("Keys:Keys Out")
	synth := drv.addOut("Synth:Synth In")
	tr, _ := newTransport(t, drv)

	if caps := tr.Capabilities(); !caps.Relays || caps.PersistentRelays {
		t.Fatalf("unexpected capabilities %+v", caps)
	}
	source, _ := endpointNamed(t, tr, "Keys Out")
	dest, _ := endpointNamed(t, tr, "Synth In")

	params := transport.DefaultRelayParams()
	params.FilterBeatClock = true
	params.UseChannelMap = true
	params.ChannelMap[0] = 2
	relay, err := tr.CreateRelay(transport.RelaySpec{Sources: []transport.Handle{source.Handle}, Destinations: []transport.Handle{dest.Handle}, Params: params})
	if err != nil {
		t.Fatalf("CreateRelay: %v", err)
	}
	keys.play([]byte{0xF8})
	keys.play([]byte{0x90, 60, 100})

	sent := synth.messages()
	if len(sent) != 1 || !bytes.Equal(sent[0], []byte{0x92, 60, 100}) {
		t.Fatalf("unexpected relayed messages % X", sent)
	}

	if _, err := tr.CreateRelay(transport.RelaySpec{Sources: []transport.Handle{source.Handle}, OwnerID: "owner"}); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for persistent relay, got %v", err)
	}
	if _, err := tr.FindPersistentRelays("owner"); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if err := tr.DisposeRelay(relay); err != nil {
		t.Fatalf("DisposeRelay: %v", err)
	}
	if keys.listening() {
		t.Fatal("expected listener released with the relay")
	}
}

func TestHardwarePropertiesAreReadOnly(t *testing.T) {
	drv := &fakeDriver{}
	drv.addIn("Keys:Keys Out")
	tr, _ := newTransport(t, drv)
	source, _ := endpointNamed(t, tr, "Keys Out")

	if err := tr.SetStringProperty(source.Handle, transport.PropModel, "x"); !errors.Is(err, transport.ErrStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if err := tr.SetIntProperty(source.Handle, transport.PropUniqueID, 5); !errors.Is(err, transport.ErrStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := tr.IntProperty(9999, transport.PropUniqueID); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseClosesDriver(t *testing.T) {
	drv := &fakeDriver{}
	tr, err := gomiditransport.New(drv, gomiditransport.WithClock(clock.NewMock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.closed {
		t.Fatal("driver not closed")
	}
}

func equalKinds(a, b []transport.MessageKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

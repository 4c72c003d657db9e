package memtransport

import (
	"errors"
	"sync"
	"testing"

	"midisession/internal/transport"
)

type rawLog struct {
	mu    sync.Mutex
	kinds []transport.MessageKind
}

func (l *rawLog) notify(raw []byte) {
	n, _ := transport.DecodeNotification(raw)
	l.mu.Lock()
	l.kinds = append(l.kinds, n.Kind)
	l.mu.Unlock()
}

func (l *rawLog) snapshot() []transport.MessageKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transport.MessageKind(nil), l.kinds...)
}

func TestVirtualPortHintCollision(t *testing.T) {
	sys := NewSystem()
	c, err := sys.CreateClient("a", nil)
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	_, first, err := sys.CreateVirtualPort(c, "one", transport.Input, 4242, nil)
	if err != nil {
		t.Fatalf("CreateVirtualPort: %v", err)
	}
	if first != 4242 {
		t.Fatalf("expected free hint to be honored, got %d", first)
	}

	_, second, err := sys.CreateVirtualPort(c, "two", transport.Input, 4242, nil)
	if err != nil {
		t.Fatalf("CreateVirtualPort: %v", err)
	}
	if second == 4242 || !second.Valid() {
		t.Fatalf("expected a fresh id on collision, got %d", second)
	}
}

func TestNotificationsDeliveredInOrder(t *testing.T) {
	sys := NewSystem()
	log := &rawLog{}
	if _, err := sys.CreateClient("watcher", log.notify); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	dev := sys.AddDevice("Keys", "Acme", "K1")
	ep, err := sys.AddEndpoint(dev, "Out", transport.Output, 0)
	if err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if err := sys.RemoveEndpoint(ep); err != nil {
		t.Fatalf("RemoveEndpoint: %v", err)
	}
	sys.Flush()

	want := []transport.MessageKind{
		transport.MsgObjectAdded, transport.MsgSetupChanged,
		transport.MsgObjectAdded, transport.MsgSetupChanged,
		transport.MsgObjectRemoved, transport.MsgSetupChanged,
	}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestInputPortReceivesFromConnectedSource(t *testing.T) {
	sys := NewSystem()
	c, _ := sys.CreateClient("a", nil)
	dev := sys.AddDevice("Pads", "Acme", "P8")
	src, _ := sys.AddEndpoint(dev, "Out", transport.Output, 0)

	var mu sync.Mutex
	var got [][]byte
	port, err := sys.CreateInputPort(c, "in", func(p transport.Packet) {
		mu.Lock()
		got = append(got, p.Data)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("CreateInputPort: %v", err)
	}
	sys.Inject(src, []byte{0x90, 60, 100})
	if err := sys.ConnectSource(port, src); err != nil {
		t.Fatalf("ConnectSource: %v", err)
	}
	sys.Inject(src, []byte{0x80, 60, 0})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0][0] != 0x80 {
		t.Fatalf("expected only the post-connect packet, got %v", got)
	}
}

func TestRelayCapabilities(t *testing.T) {
	sys := NewSystem(WithCapabilities(transport.Capabilities{Relays: true}))
	dev := sys.AddDevice("Box", "Acme", "B")
	src, _ := sys.AddEndpoint(dev, "Out", transport.Output, 0)
	dst, _ := sys.AddEndpoint(dev, "In", transport.Input, 0)

	if _, err := sys.CreateRelay(transport.RelaySpec{Sources: []transport.Handle{src}, Destinations: []transport.Handle{dst}}); err != nil {
		t.Fatalf("non-persistent relay: %v", err)
	}
	_, err := sys.CreateRelay(transport.RelaySpec{Sources: []transport.Handle{src}, Destinations: []transport.Handle{dst}, OwnerID: "owner"})
	if !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}

	sys.Inject(src, []byte{0xf8})
	if sent := sys.Sent(dst); len(sent) != 1 {
		t.Fatalf("expected relay to forward one packet, got %d", len(sent))
	}
}

func TestFailureInjection(t *testing.T) {
	sys := NewSystem()
	boom := errors.New("boom")
	sys.Fail("CreateClient", boom)
	if _, err := sys.CreateClient("x", nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	sys.ClearFailure("CreateClient")
	if _, err := sys.CreateClient("x", nil); err != nil {
		t.Fatalf("expected success after clear, got %v", err)
	}
}

func TestPropertyLookupOnMissingHandle(t *testing.T) {
	sys := NewSystem()
	_, err := sys.StringProperty(999, transport.PropName)
	if !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, transport.ErrStatus) {
		t.Fatalf("expected status code in chain, got %v", err)
	}
}

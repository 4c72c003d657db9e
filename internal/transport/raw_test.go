package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotificationRoundTripShapes(t *testing.T) {
	tests := []struct {
		name string
		in   RawNotification
	}{
		{name: "setup changed", in: RawNotification{Kind: MsgSetupChanged}},
		{name: "added", in: RawNotification{Kind: MsgObjectAdded, Parent: 4, ParentType: ObjectEntity, Child: 9, ChildType: ObjectSource}},
		{name: "removed without parent", in: RawNotification{Kind: MsgObjectRemoved, Child: 11, ChildType: ObjectDestination}},
		{name: "property", in: RawNotification{Kind: MsgPropertyChanged, Object: 3, ObjectType: ObjectDevice, Property: PropName}},
		{name: "io error", in: RawNotification{Kind: MsgIOError, Device: 2, ErrorCode: -10830}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeNotification(EncodeNotification(tt.in))
			if !ok {
				t.Fatal("expected decode to succeed")
			}
			if got != tt.in {
				t.Fatalf("decoded %+v, want %+v", got, tt.in)
			}
		})
	}
}

func TestDecodeNotificationTolerantOfShortBuffers(t *testing.T) {
	if n, ok := DecodeNotification(nil); ok || n.Kind != 0 {
		t.Fatalf("nil buffer decoded as %+v ok=%v", n, ok)
	}

	full := EncodeNotification(RawNotification{Kind: MsgObjectAdded, Child: 1, ChildType: ObjectSource})
	truncated := append([]byte(nil), full[:12]...)
	// size field still claims the full length
	n, ok := DecodeNotification(truncated)
	if ok {
		t.Fatal("expected truncated buffer to be rejected")
	}
	if n.Kind != MsgObjectAdded {
		t.Fatalf("expected kind to survive truncation, got %d", n.Kind)
	}
}

func TestDecodeNotificationUnknownKind(t *testing.T) {
	raw := EncodeNotification(RawNotification{Kind: MessageKind(77)})
	n, ok := DecodeNotification(raw)
	if !ok {
		t.Fatal("unknown kinds with a valid header should decode")
	}
	if n.Kind != 77 {
		t.Fatalf("kind = %d", n.Kind)
	}
}

func TestDecodeDoesNotAliasInput(t *testing.T) {
	raw := EncodeNotification(RawNotification{Kind: MsgPropertyChanged, Object: 1, Property: "name"})
	n, _ := DecodeNotification(raw)
	for i := range raw {
		raw[i] = 0xff
	}
	if n.Property != "name" {
		t.Fatalf("property mutated with buffer: %q", n.Property)
	}
}

func TestStatusErrorMatching(t *testing.T) {
	err := fmt.Errorf("connect: %w", Status("MIDIPortConnectSource", -10830))
	if !errors.Is(err, ErrStatus) {
		t.Fatal("expected ErrStatus match")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != -10830 {
		t.Fatalf("expected status code, got %v", err)
	}

	wrapped := Wrap(ErrReadBack, "virtual input", "read unique id", "", errors.New("boom"))
	if !errors.Is(wrapped, ErrReadBack) {
		t.Fatal("expected ErrReadBack marker")
	}
	if got := wrapped.Error(); got != "read-after-write failure: virtual input: read unique id: boom" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestEndpointIdentityPrefersUniqueID(t *testing.T) {
	a := EndpointRecord{Handle: 1, UniqueID: 50}
	b := EndpointRecord{Handle: 2, UniqueID: 50}
	if a.Identity() != b.Identity() {
		t.Fatal("same unique id should compare equal across handles")
	}
	c := EndpointRecord{Handle: 3}
	if c.Identity() != (Identity{Handle: 3}) {
		t.Fatalf("expected handle identity, got %+v", c.Identity())
	}
}

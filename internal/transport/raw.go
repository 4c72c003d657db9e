package transport

import "encoding/binary"

// MessageKind is the numeric id at the head of a raw notification.
type MessageKind int32

const (
	MsgSetupChanged           MessageKind = 1
	MsgObjectAdded            MessageKind = 2
	MsgObjectRemoved          MessageKind = 3
	MsgPropertyChanged        MessageKind = 4
	MsgThruConnectionsChanged MessageKind = 5
	MsgSerialPortOwnerChanged MessageKind = 6
	MsgIOError                MessageKind = 7
	MsgInternalStart          MessageKind = 0x1000
)

// Raw notification layout, little endian:
//
//	header:           kind int32 | size uint32
//	added/removed:    parent uint32 | parentType int32 | child uint32 | childType int32
//	property changed: object uint32 | objectType int32 | nameLen uint16 | name
//	io error:         device uint32 | code int32
const rawHeaderSize = 8

// RawNotification is a fully decoded, owned copy of a raw buffer.
type RawNotification struct {
	Kind MessageKind

	Parent     Handle
	ParentType ObjectType
	Child      Handle
	ChildType  ObjectType

	Object     Handle
	ObjectType ObjectType
	Property   string

	Device    Handle
	ErrorCode int32
}

// DecodeNotification parses raw into an owned value. It never fails: ok is
// false when the buffer is too short for its declared kind, in which case
// only Kind is meaningful (zero when even the header is missing).
func DecodeNotification(raw []byte) (n RawNotification, ok bool) {
	if len(raw) < rawHeaderSize {
		return RawNotification{}, false
	}
	le := binary.LittleEndian
	n.Kind = MessageKind(int32(le.Uint32(raw[0:4])))
	size := int(le.Uint32(raw[4:8]))
	if size > len(raw) || size < rawHeaderSize {
		return n, false
	}
	body := raw[rawHeaderSize:size]

	switch n.Kind {
	case MsgObjectAdded, MsgObjectRemoved:
		if len(body) < 16 {
			return n, false
		}
		n.Parent = Handle(le.Uint32(body[0:4]))
		n.ParentType = ObjectType(int32(le.Uint32(body[4:8])))
		n.Child = Handle(le.Uint32(body[8:12]))
		n.ChildType = ObjectType(int32(le.Uint32(body[12:16])))
	case MsgPropertyChanged:
		if len(body) < 10 {
			return n, false
		}
		n.Object = Handle(le.Uint32(body[0:4]))
		n.ObjectType = ObjectType(int32(le.Uint32(body[4:8])))
		nameLen := int(le.Uint16(body[8:10]))
		if len(body) < 10+nameLen {
			return n, false
		}
		n.Property = string(body[10 : 10+nameLen])
	case MsgIOError:
		if len(body) < 8 {
			return n, false
		}
		n.Device = Handle(le.Uint32(body[0:4]))
		n.ErrorCode = int32(le.Uint32(body[4:8]))
	}
	return n, true
}

// EncodeNotification renders n in the raw layout. Transports use it to feed
// their notify callback.
func EncodeNotification(n RawNotification) []byte {
	var body []byte
	le := binary.LittleEndian
	switch n.Kind {
	case MsgObjectAdded, MsgObjectRemoved:
		body = make([]byte, 16)
		le.PutUint32(body[0:4], uint32(n.Parent))
		le.PutUint32(body[4:8], uint32(n.ParentType))
		le.PutUint32(body[8:12], uint32(n.Child))
		le.PutUint32(body[12:16], uint32(n.ChildType))
	case MsgPropertyChanged:
		name := n.Property
		if len(name) > 0xffff {
			name = name[:0xffff]
		}
		body = make([]byte, 10+len(name))
		le.PutUint32(body[0:4], uint32(n.Object))
		le.PutUint32(body[4:8], uint32(n.ObjectType))
		le.PutUint16(body[8:10], uint16(len(name)))
		copy(body[10:], name)
	case MsgIOError:
		body = make([]byte, 8)
		le.PutUint32(body[0:4], uint32(n.Device))
		le.PutUint32(body[4:8], uint32(n.ErrorCode))
	}
	out := make([]byte, rawHeaderSize+len(body))
	le.PutUint32(out[0:4], uint32(n.Kind))
	le.PutUint32(out[4:8], uint32(len(out)))
	copy(out[rawHeaderSize:], body)
	return out
}

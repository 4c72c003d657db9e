package notify

import (
	"fmt"
	"strconv"

	"midisession/internal/transport"
)

// ObjectSummary describes an object at the time a notification was
// processed, so receivers never have to query a possibly-gone handle.
type ObjectSummary struct {
	Type        transport.ObjectType
	Handle      transport.Handle
	UniqueID    transport.UniqueID
	Name        string
	DisplayName string
}

func (o ObjectSummary) String() string {
	name := o.Name
	if name == "" {
		name = "handle " + strconv.FormatUint(uint64(o.Handle), 10)
	}
	if o.UniqueID.Valid() {
		return fmt.Sprintf("%s %q (id %d)", o.Type, name, o.UniqueID)
	}
	return fmt.Sprintf("%s %q", o.Type, name)
}

// Notification is one typed topology event. The set of implementations is
// closed: SetupChanged, Added, Removed, PropertyChanged,
// RelayConnectionsChanged, DriverError and Other.
type Notification interface {
	Kind() string
	fmt.Stringer
	sealed()
}

// Kind names, also used as metric labels.
const (
	KindSetupChanged    = "setup_changed"
	KindAdded           = "added"
	KindRemoved         = "removed"
	KindPropertyChanged = "property_changed"
	KindRelaysChanged   = "relay_connections_changed"
	KindDriverError     = "driver_error"
	KindOther           = "other"
)

type SetupChanged struct{}

type Added struct {
	Parent *ObjectSummary
	Child  ObjectSummary
}

type Removed struct {
	Parent *ObjectSummary
	Child  ObjectSummary
}

type PropertyChanged struct {
	Object   ObjectSummary
	Property string
}

type RelayConnectionsChanged struct{}

type DriverError struct {
	Device ObjectSummary
	Err    error
}

// Other carries a message kind this package does not model.
type Other struct {
	RawID int32
}

func (SetupChanged) Kind() string            { return KindSetupChanged }
func (Added) Kind() string                   { return KindAdded }
func (Removed) Kind() string                 { return KindRemoved }
func (PropertyChanged) Kind() string         { return KindPropertyChanged }
func (RelayConnectionsChanged) Kind() string { return KindRelaysChanged }
func (DriverError) Kind() string             { return KindDriverError }
func (Other) Kind() string                   { return KindOther }

func (SetupChanged) sealed()            {}
func (Added) sealed()                   {}
func (Removed) sealed()                 {}
func (PropertyChanged) sealed()         {}
func (RelayConnectionsChanged) sealed() {}
func (DriverError) sealed()             {}
func (Other) sealed()                   {}

func (SetupChanged) String() string { return "setup changed" }

func (n Added) String() string {
	if n.Parent != nil {
		return fmt.Sprintf("added %s to %s", n.Child, *n.Parent)
	}
	return "added " + n.Child.String()
}

func (n Removed) String() string {
	if n.Parent != nil {
		return fmt.Sprintf("removed %s from %s", n.Child, *n.Parent)
	}
	return "removed " + n.Child.String()
}

func (n PropertyChanged) String() string {
	return fmt.Sprintf("property %q changed on %s", n.Property, n.Object)
}

func (RelayConnectionsChanged) String() string { return "relay connections changed" }

func (n DriverError) String() string {
	return fmt.Sprintf("driver error on %s: %v", n.Device, n.Err)
}

func (n Other) String() string { return "other notification " + strconv.Itoa(int(n.RawID)) }

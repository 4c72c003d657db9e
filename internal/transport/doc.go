// Package transport defines the primitive surface of a host MIDI system and
// the shared vocabulary built on it.
//
// The Transport interface is the only contract the session manager relies
// on: client lifetime, enumeration, property access, port and relay
// creation, and a raw notification callback. Notifications travel as a
// compact little-endian buffer (see raw.go) so that every backend produces
// the same bytes and the manager can decode them off the delivering thread.
//
// Error values are sentinel markers (ErrStatus, ErrReadBack,
// ErrNotSupported, ErrPartial) matched with errors.Is; StatusError exposes
// the numeric code of a failed call.
package transport

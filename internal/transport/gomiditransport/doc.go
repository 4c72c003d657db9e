// Package gomiditransport implements transport.Transport on top of a gomidi
// driver (rtmidi, portmidi, or any other drivers.Driver).
//
// gomidi exposes flat port lists without hotplug callbacks, so the backend
// polls the driver on a ticker and diffs the result into added/removed
// notifications. Devices and entities are synthesized from the port names,
// and unique ids are derived from a name hash so they stay stable across
// reconnections of the same hardware. Relays are implemented in process.
package gomiditransport

// Package daemon coordinates the long-running midisessiond process.
//
// It wires configuration, the id store, the MIDI transport, the session
// manager, udev hotplug and the Prometheus endpoint into a single lifecycle
// with flock-based locking to prevent multiple instances. On start the
// daemon declares the virtual ports, connections and relays listed in the
// configuration and logs every topology notification the session reports.
//
// Keep orchestration here: session semantics live in internal/manager and
// the daemon only decides what to declare and how to expose it.
package daemon

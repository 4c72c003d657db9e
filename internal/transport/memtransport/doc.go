// Package memtransport simulates a host MIDI system in process.
//
// A System is shared by every client created on it, so two session managers
// pointed at the same System observe each other's virtual ports exactly as
// two processes would on a real host. Topology changes made through the
// System hooks (AddDevice, AddEndpoint, RemoveEndpoint, Rename, ...) are
// announced through the raw notification callback on a per-client delivery
// goroutine, preserving order. Fail injects errors into any primitive by
// method name.
//
// The memory backend of the daemon and every manager test run on this
// package.
package memtransport

// Package notifications pushes MIDI device alerts to ntfy.
//
// The daemon calls the Service when a device appears, disappears or reports
// a driver error. With no ntfy topic configured NewService returns a no-op
// implementation, so callers never check whether alerts are enabled.
package notifications

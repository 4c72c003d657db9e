// Package hotplug watches kernel uevents for sound devices and asks a
// polling transport to rescan as soon as a MIDI interface is plugged in or
// removed, instead of waiting for the next poll tick.
package hotplug

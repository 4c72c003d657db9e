//go:build cgo

package main

// Registers the RtMidi driver returned by drivers.Get for the gomidi backend.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

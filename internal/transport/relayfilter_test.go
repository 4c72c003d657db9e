package transport

import (
	"bytes"
	"testing"
)

func TestApplyRelayParams(t *testing.T) {
	defaults := DefaultRelayParams()
	remap := DefaultRelayParams()
	remap.UseChannelMap = true
	remap.ChannelMap[0] = 9
	remap.ChannelMap[1] = 0xFF
	narrow := DefaultRelayParams()
	narrow.LowNote, narrow.HighNote = 36, 48
	narrow.LowVelocity = 10
	filters := DefaultRelayParams()
	filters.FilterSysEx = true
	filters.FilterBeatClock = true
	filters.FilterMTC = true
	filters.FilterTuneRequest = true
	filters.FilterAllControls = true

	tests := []struct {
		name   string
		params RelayParams
		in     []byte
		want   []byte
		pass   bool
	}{
		{name: "defaults pass note", params: defaults, in: []byte{0x90, 60, 100}, want: []byte{0x90, 60, 100}, pass: true},
		{name: "empty dropped", params: defaults, in: nil, pass: false},
		{name: "channel remapped", params: remap, in: []byte{0x90, 60, 100}, want: []byte{0x99, 60, 100}, pass: true},
		{name: "channel disabled", params: remap, in: []byte{0x91, 60, 100}, pass: false},
		{name: "note below range", params: narrow, in: []byte{0x90, 30, 100}, pass: false},
		{name: "note in range", params: narrow, in: []byte{0x80, 40, 64}, want: []byte{0x80, 40, 64}, pass: true},
		{name: "velocity below range", params: narrow, in: []byte{0x90, 40, 5}, pass: false},
		{name: "zero velocity note-off passes", params: narrow, in: []byte{0x90, 40, 0}, want: []byte{0x90, 40, 0}, pass: true},
		{name: "sysex filtered", params: filters, in: []byte{0xF0, 0x7E, 0xF7}, pass: false},
		{name: "clock filtered", params: filters, in: []byte{0xF8}, pass: false},
		{name: "start filtered", params: filters, in: []byte{0xFA}, pass: false},
		{name: "mtc filtered", params: filters, in: []byte{0xF1, 0x20}, pass: false},
		{name: "tune request filtered", params: filters, in: []byte{0xF6}, pass: false},
		{name: "controls filtered", params: filters, in: []byte{0xB0, 7, 100}, pass: false},
		{name: "active sensing passes filters", params: filters, in: []byte{0xFE}, want: []byte{0xFE}, pass: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ApplyRelayParams(tc.params, tc.in)
			if ok != tc.pass {
				t.Fatalf("pass = %t, want %t", ok, tc.pass)
			}
			if ok && !bytes.Equal(got, tc.want) {
				t.Fatalf("got % X, want % X", got, tc.want)
			}
		})
	}
}

func TestApplyRelayParamsDoesNotModifyInput(t *testing.T) {
	p := DefaultRelayParams()
	p.UseChannelMap = true
	p.ChannelMap[0] = 3
	in := []byte{0x90, 60, 100}
	if _, ok := ApplyRelayParams(p, in); !ok {
		t.Fatal("expected message to pass")
	}
	if in[0] != 0x90 {
		t.Fatalf("input modified: % X", in)
	}
}

package transport

// ApplyRelayParams returns msg as it should leave a relay configured with p,
// or false when the message is filtered out. msg is never modified.
func ApplyRelayParams(p RelayParams, msg []byte) ([]byte, bool) {
	if len(msg) == 0 {
		return nil, false
	}
	status := msg[0]
	switch {
	case status == 0xF0 || status == 0xF7:
		return msg, !p.FilterSysEx
	case status == 0xF1:
		return msg, !p.FilterMTC
	case status == 0xF6:
		return msg, !p.FilterTuneRequest
	case status == 0xF8 || status == 0xFA || status == 0xFB || status == 0xFC:
		return msg, !p.FilterBeatClock
	case status >= 0xF0:
		return msg, true
	case status < 0x80:
		// running status is not tracked per relay
		return msg, true
	}

	kind := status & 0xF0
	channel := status & 0x0F
	if kind == 0xB0 && p.FilterAllControls {
		return nil, false
	}
	if (kind == 0x80 || kind == 0x90 || kind == 0xA0) && len(msg) >= 3 {
		note, velocity := msg[1], msg[2]
		if note < p.LowNote || note > p.HighNote {
			return nil, false
		}
		if kind != 0xA0 && (velocity < p.LowVelocity || velocity > p.HighVelocity) {
			// note-on with velocity 0 is a note-off and always passes
			if !(kind == 0x90 && velocity == 0) {
				return nil, false
			}
		}
	}
	if !p.UseChannelMap {
		return msg, true
	}
	mapped := p.ChannelMap[channel]
	if mapped > 0x0F {
		return nil, false
	}
	if mapped == channel {
		return msg, true
	}
	out := append([]byte(nil), msg...)
	out[0] = kind | mapped
	return out, true
}

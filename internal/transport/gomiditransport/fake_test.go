package gomiditransport_test

import (
	"errors"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
)

type fakeDriver struct {
	mu      sync.Mutex
	ins     []*fakeIn
	outs    []*fakeOut
	closed  bool
	failIns error
	virtual bool
}

func (d *fakeDriver) addIn(name string) *fakeIn {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &fakeIn{fakePort: fakePort{name: name, number: len(d.ins)}}
	d.ins = append(d.ins, p)
	return p
}

func (d *fakeDriver) addOut(name string) *fakeOut {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &fakeOut{fakePort: fakePort{name: name, number: len(d.outs)}}
	d.outs = append(d.outs, p)
	return p
}

func (d *fakeDriver) removeIn(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.ins[:0]
	for _, p := range d.ins {
		if p.name != name {
			kept = append(kept, p)
		}
	}
	d.ins = kept
}

func (d *fakeDriver) Ins() ([]drivers.In, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failIns != nil {
		return nil, d.failIns
	}
	out := make([]drivers.In, 0, len(d.ins))
	for _, p := range d.ins {
		out = append(out, p)
	}
	return out, nil
}

func (d *fakeDriver) Outs() ([]drivers.Out, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]drivers.Out, 0, len(d.outs))
	for _, p := range d.outs {
		out = append(out, p)
	}
	return out, nil
}

func (d *fakeDriver) String() string { return "fake" }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// virtualDriver adds virtual port support on top of fakeDriver.
type virtualDriver struct {
	*fakeDriver
	vins  []*fakeIn
	vouts []*fakeOut
}

func (d *virtualDriver) OpenVirtualIn(name string) (drivers.In, error) {
	p := &fakeIn{fakePort: fakePort{name: name, open: true}}
	d.vins = append(d.vins, p)
	return p, nil
}

func (d *virtualDriver) OpenVirtualOut(name string) (drivers.Out, error) {
	p := &fakeOut{fakePort: fakePort{name: name, open: true}}
	d.vouts = append(d.vouts, p)
	return p, nil
}

type fakePort struct {
	mu     sync.Mutex
	name   string
	number int
	open   bool
}

func (p *fakePort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

func (p *fakePort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *fakePort) Number() int             { return p.number }
func (p *fakePort) String() string          { return p.name }
func (p *fakePort) Underlying() interface{} { return nil }

type fakeIn struct {
	fakePort
	listenMu sync.Mutex
	onMsg    func([]byte, int32)
	stops    int
}

func (p *fakeIn) Listen(onMsg func(msg []byte, milliseconds int32), _ drivers.ListenConfig) (func(), error) {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	if p.onMsg != nil {
		return nil, errors.New("already listening")
	}
	p.onMsg = onMsg
	return func() {
		p.listenMu.Lock()
		defer p.listenMu.Unlock()
		p.onMsg = nil
		p.stops++
	}, nil
}

// play delivers msg as if the hardware had sent it.
func (p *fakeIn) play(msg []byte) bool {
	p.listenMu.Lock()
	fn := p.onMsg
	p.listenMu.Unlock()
	if fn == nil {
		return false
	}
	fn(msg, 0)
	return true
}

func (p *fakeIn) listening() bool {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	return p.onMsg != nil
}

type fakeOut struct {
	fakePort
	sentMu sync.Mutex
	sent   [][]byte
}

func (p *fakeOut) Send(data []byte) error {
	p.sentMu.Lock()
	defer p.sentMu.Unlock()
	p.sent = append(p.sent, append([]byte(nil), data...))
	return nil
}

func (p *fakeOut) messages() [][]byte {
	p.sentMu.Lock()
	defer p.sentMu.Unlock()
	return append([][]byte(nil), p.sent...)
}

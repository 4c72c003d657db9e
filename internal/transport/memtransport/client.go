package memtransport

import (
	"sync"

	"midisession/internal/transport"
)

// client delivers raw notifications in order on its own goroutine, the way
// a host transport calls back on a thread it controls.
type client struct {
	handle transport.Handle
	name   string
	notify transport.NotifyFunc

	mu       sync.Mutex
	cond     *sync.Cond
	pending  [][]byte
	inFlight bool
	closed   bool
}

func newClient(h transport.Handle, name string, notify transport.NotifyFunc) *client {
	c := &client{handle: h, name: name, notify: notify}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

func (c *client) enqueue(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.notify == nil {
		return
	}
	c.pending = append(c.pending, raw)
	c.cond.Broadcast()
}

func (c *client) run() {
	for {
		c.mu.Lock()
		for len(c.pending) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.pending = nil
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		raw := c.pending[0]
		c.pending = c.pending[1:]
		c.inFlight = true
		c.mu.Unlock()

		c.notify(raw)

		c.mu.Lock()
		c.inFlight = false
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

func (c *client) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for (len(c.pending) > 0 || c.inFlight) && !c.closed {
		c.cond.Wait()
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	c.cond.Broadcast()
}

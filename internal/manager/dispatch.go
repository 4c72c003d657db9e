package manager

import (
	"sync"

	"midisession/internal/notify"
)

// NotificationHandler receives every published notification, in order, on
// the dispatcher goroutine.
type NotificationHandler func(notify.Notification)

// dispatcher delivers notifications off the serial queue so a slow handler
// never stalls topology processing.
type dispatcher struct {
	mu      sync.Mutex
	pending []notify.Notification
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
	handler func() NotificationHandler
}

func newDispatcher(handler func() NotificationHandler) *dispatcher {
	d := &dispatcher{
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		handler: handler,
	}
	go d.loop()
	return d
}

func (d *dispatcher) push(n notify.Notification) {
	d.mu.Lock()
	d.pending = append(d.pending, n)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) deliver() {
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, n := range batch {
			if h := d.handler(); h != nil {
				h(n)
			}
		}
	}
}

func (d *dispatcher) loop() {
	for {
		d.deliver()
		select {
		case <-d.wake:
		case <-d.stop:
			d.deliver()
			return
		}
	}
}

// close delivers what is pending and stops the goroutine. It does not wait,
// so a handler may call Close on its own session.
func (d *dispatcher) close() {
	d.once.Do(func() { close(d.stop) })
}

package testsupport

import (
	"sync"
	"testing"
	"time"

	"midisession/internal/notify"
	"midisession/internal/transport/memtransport"
)

// NewSystem returns an empty in-process host.
func NewSystem(t testing.TB, opts ...memtransport.Option) *memtransport.System {
	t.Helper()
	return memtransport.NewSystem(opts...)
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// NotificationRecorder collects notifications delivered to a handler.
type NotificationRecorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

// Record is suitable as a notification handler.
func (r *NotificationRecorder) Record(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *NotificationRecorder) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

// Kinds returns the kind of every recorded notification in order.
func (r *NotificationRecorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Kind())
	}
	return out
}

// Count returns how many notifications of kind were recorded.
func (r *NotificationRecorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Kind() == kind {
			n++
		}
	}
	return n
}

package manager

import "time"

// Metrics receives session counters. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	NotificationProcessed(kind string)
	NotificationDropped(kind string)
	CacheRebuilt(elapsed time.Duration, err error)
	BindingsReconciled(kind string, added, removed, failed int)
	ResourcesChanged(counts map[string]int)
}

type nopMetrics struct{}

func (nopMetrics) NotificationProcessed(string)             {}
func (nopMetrics) NotificationDropped(string)               {}
func (nopMetrics) CacheRebuilt(time.Duration, error)        {}
func (nopMetrics) BindingsReconciled(string, int, int, int) {}
func (nopMetrics) ResourcesChanged(map[string]int)          {}

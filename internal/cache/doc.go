// Package cache holds the manager's read-through view of the transport's
// devices and endpoints.
//
// A Snapshot is built in one pass and published through an atomic pointer;
// it is never edited afterwards. That lets callers on arbitrary goroutines
// read devices and endpoints while the manager's queue rebuilds, and it lets
// the notification translator keep the previous snapshot around to describe
// objects that have already vanished from the host.
package cache

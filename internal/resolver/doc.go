// Package resolver decides which endpoints a connection should be bound to.
//
// Resolve and Diff are pure: they take the current endpoint list and the
// connection's criteria and return sets keyed by endpoint identity (the
// unique id when valid, the handle otherwise). Reconcile applies a diff
// through caller-supplied bind and unbind functions, attempting every change
// independently and aggregating failures with multierr.
package resolver

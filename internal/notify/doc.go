// Package notify models the typed topology notifications a session
// publishes and translates raw transport buffers into them.
//
// Translation needs two views of the world. Additions are resolved live
// through the transport because the object cache has not seen them yet.
// Removals are resolved from the snapshot taken before the batch was
// processed because the transport no longer knows the object. Events that
// cannot be resolved are dropped rather than published half-empty.
package notify

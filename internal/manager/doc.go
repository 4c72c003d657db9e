// Package manager owns a MIDI session: the client registration with the
// host transport, the object cache, and every virtual port and connection
// the application creates.
//
// All work runs on one serial queue goroutine. Application calls submit a
// job and wait for its result; transport notifications are copied on the
// transport thread and appended to an unbounded pending list that the queue
// drains before running the next job. Each drained batch is translated
// against the cache as it stood before the batch, the cache is rebuilt when
// topology changed, every connection is re-resolved, and the resulting
// notifications are handed to a separate dispatcher goroutine that invokes
// the public handler in order.
//
// Resources live in five tag-keyed tables. Adding a tag that is already
// present tears the old resource down first; a resource whose realization
// fails stays in its table so it can be inspected or removed explicitly.
package manager

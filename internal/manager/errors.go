package manager

import "errors"

var (
	// ErrNotStarted is returned by operations that need a client before
	// Start has succeeded.
	ErrNotStarted = errors.New("session not started")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
	// ErrUnknownTag is returned when no resource of the requested kind
	// carries the tag.
	ErrUnknownTag = errors.New("unknown resource tag")
	// ErrNotRealized is returned when a resource exists in its table but
	// its transport object was never created.
	ErrNotRealized = errors.New("resource not realized")
)

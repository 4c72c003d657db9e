package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStatus marks a failing transport call that returned a status code.
	ErrStatus = errors.New("transport status error")
	// ErrReadBack marks a value that could not be read after it was written.
	ErrReadBack = errors.New("read-after-write failure")
	// ErrNotSupported marks a capability the current host does not offer.
	ErrNotSupported = errors.New("not supported")
	// ErrPartial marks a batch in which some items failed.
	ErrPartial = errors.New("partial failure")
	// ErrNotFound marks a handle that no longer resolves.
	ErrNotFound = errors.New("object not found")
)

// StatusError carries the operation and numeric status of a failed call.
type StatusError struct {
	Op   string
	Code int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// Is lets errors.Is match ErrStatus against any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Status builds a StatusError for op.
func Status(op string, code int32) error {
	return &StatusError{Op: op, Code: code}
}

// Wrap tags err with marker and a readable operation context. The marker
// should be one of the sentinel errors above.
func Wrap(marker error, subject, operation, message string, err error) error {
	detail := buildDetail(subject, operation, message)
	if marker == nil {
		marker = ErrStatus
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(subject, operation, message string) string {
	parts := make([]string, 0, 3)
	if subject = strings.TrimSpace(subject); subject != "" {
		parts = append(parts, subject)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "transport failure"
	}
	return strings.Join(parts, ": ")
}

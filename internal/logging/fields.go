package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the machine-readable event a log line records.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldResourceKind names the managed resource table (virtual_input, input_connection, ...).
	FieldResourceKind = "resource_kind"
	// FieldTag is the application tag of a managed resource.
	FieldTag = "tag"
	// FieldUniqueID is the transport unique id of an object.
	FieldUniqueID = "unique_id"
	// FieldEndpoint is an endpoint's display name.
	FieldEndpoint = "endpoint"
	// FieldNotification is the kind of a topology notification.
	FieldNotification = "notification"
	// FieldSessionID correlates every line a single manager instance emits.
	FieldSessionID = "session_id"
	// FieldClientName is the client name registered with the transport.
	FieldClientName = "client_name"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// WithSessionID annotates ctx with a manager session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session id if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		return logger.With(String(FieldSessionID, id))
	}
	return logger
}

package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for subsystem names.
	FieldComponent = "component"
	// FieldPluginID is the standardized structured logging key for a plugin identifier.
	FieldPluginID = "plugin_id"
	// FieldAction is the standardized structured logging key for an action-instance name.
	FieldAction = "action"
	// FieldJobID is the standardized structured logging key for a job identifier (its source path).
	FieldJobID = "job"
	// FieldEventKind is the standardized structured logging key for an event-bus event kind.
	FieldEventKind = "event_kind"
	// FieldLibraryRoot is the standardized structured logging key for a library root path.
	FieldLibraryRoot = "library_root"
	// FieldRelPath is the standardized structured logging key for a media path relative to its library root.
	FieldRelPath = "rel_path"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying the given correlation id for later log enrichment.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := correlationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

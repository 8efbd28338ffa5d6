package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	transportKey contextKey = "transport"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the backend download job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTransport annotates context with the streaming transport kind (sse/websocket).
func WithTransport(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, transportKey, kind)
}

// TransportFromContext returns the transport kind if present.
func TransportFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transportKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	principalKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithPrincipal stores the hashed principal key for log correlation.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// Principal extracts the principal key from the context, or "".
func Principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(string)
	return p
}

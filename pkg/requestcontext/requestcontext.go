// Package requestcontext carries request-scoped values (correlation id and the
// "now" used for every time-sensitive decision) through context.Context.
//
// Lockout expiry, sliding windows, session expiry and token expiry all read the
// clock through Now, so a whole login attempt sees one consistent instant and
// tests can move time without sleeping.
package requestcontext

import (
	"context"
	"time"
)

type (
	timeKey      struct{}
	requestIDKey struct{}
)

// Now returns the request-scoped time, falling back to time.Now() for
// workers and callers that never injected one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time into ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// RequestID returns the correlation id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID stores a correlation id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

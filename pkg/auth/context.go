package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const callerKey contextKey = iota

// ContextWithCaller returns a new context carrying caller. The middleware
// and interceptors call it after a successful resolution.
func ContextWithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller, or nil and false when the request
// was not authenticated.
//
// Example:
//
//	caller, ok := auth.CallerFromContext(ctx)
//	if !ok || !caller.Can(permissions.On("documents", "read", docID)) {
//	    return sserr.Forbidden("cannot read document")
//	}
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerKey).(*Caller)
	return caller, ok && caller != nil
}

// MustCallerFromContext is CallerFromContext for code that only runs
// behind the authentication middleware. It panics when no caller is set.
func MustCallerFromContext(ctx context.Context) *Caller {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		panic("auth: no caller in context; ensure authentication middleware is configured")
	}
	return caller
}

// TraceIDFromContext returns the active trace id as hex, for correlating
// authentication logs with traces.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}

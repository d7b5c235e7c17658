package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

func newTestCaller() *Caller {
	return &Caller{
		IdentityID:  uuid.MustParse("9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"),
		Permissions: permissions.MustParseSet("documents:read:all", "documents:write:42"),
		Credential:  CredentialAPIKey,
	}
}

// ---------------------------------------------------------------------------
// Caller context
// ---------------------------------------------------------------------------

func TestCallerContext_RoundTrip(t *testing.T) {
	t.Parallel()
	caller := newTestCaller()
	ctx := ContextWithCaller(context.Background(), caller)

	got, ok := CallerFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, caller, got)
	assert.Same(t, caller, MustCallerFromContext(ctx))
}

func TestCallerFromContext_Empty(t *testing.T) {
	t.Parallel()
	got, ok := CallerFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)

	_, ok = CallerFromContext(ContextWithCaller(context.Background(), nil))
	assert.False(t, ok, "a nil caller is not a caller")
}

func TestMustCallerFromContext_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { MustCallerFromContext(context.Background()) })
}

// ---------------------------------------------------------------------------
// Caller checks
// ---------------------------------------------------------------------------

func TestCaller_Can(t *testing.T) {
	t.Parallel()
	caller := newTestCaller()

	assert.True(t, caller.Can(permissions.On("documents", "read", "1")))
	assert.True(t, caller.Can(permissions.On("documents", "write", "42")))
	assert.False(t, caller.Can(permissions.On("documents", "write", "43")))
	assert.False(t, caller.Can(permissions.Global("documents", "write")))
	assert.False(t, caller.Can(permissions.Global("documents", "search")))

	assert.True(t, caller.CanAny(permissions.Global("documents", "search"), permissions.On("documents", "write", "42")))
	assert.False(t, caller.CanAny())

	var none *Caller
	assert.False(t, none.Can(permissions.On("documents", "read", "1")))
	assert.False(t, none.CanAny(permissions.On("documents", "read", "1")))
}

// ---------------------------------------------------------------------------
// Trace correlation
// ---------------------------------------------------------------------------

func TestTraceIDFromContext(t *testing.T) {
	t.Parallel()
	_, ok := TraceIDFromContext(context.Background())
	assert.False(t, ok)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	id, ok := TraceIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, span.SpanContext().TraceID().String(), id)
}

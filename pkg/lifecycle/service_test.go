package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authn/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

func mustBuild(t *testing.T, b *Builder) *Service {
	t.Helper()
	svc, err := b.Build()
	require.NoError(t, err)
	return svc
}

// ===========================================================================
// Builder Tests
// ===========================================================================

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithComponent("postgres", func(context.Context) error { return nil }).
		WithComponent("skipped", nil))

	assert.Equal(t, "authn", svc.Name())
	assert.Equal(t, "1.0.0", svc.Version())
	assert.Equal(t, StateUnknown, svc.State())
	assert.Equal(t, []string{"postgres"}, svc.Info().Components)
}

func TestBuilder_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b    *Builder
	}{
		{"empty name", NewBuilder("", "1.0.0")},
		{"empty version", NewBuilder("authn", "")},
		{"unnamed component", NewBuilder("authn", "1.0.0").WithComponent("", func(context.Context) error { return nil })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.b.Build()
			testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
		})
	}
}

// ===========================================================================
// Start / Stop Tests
// ===========================================================================

func TestService_StartStop(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var seen []State
	var hooks []string

	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithOnStart(func(context.Context) error { hooks = append(hooks, "start"); return nil }).
		WithOnStop(func(context.Context) error { hooks = append(hooks, "stop"); return nil }).
		OnStateChange(func(_, new State) {
			mu.Lock()
			seen = append(seen, new)
			mu.Unlock()
		}))

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StateRunning, svc.State())
	info := svc.Info()
	require.NotNil(t, info.StartedAt)

	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, StateStopped, svc.State())
	assert.Nil(t, svc.Info().StartedAt)

	assert.Equal(t, []string{"start", "stop"}, hooks)
	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, seen)

	// Stop on a terminal service is a no-op; a restart is allowed.
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_StartHookFailure(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithOnStart(func(context.Context) error { return errors.New("migrate failed") }))

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_StartHookKeepsClassification(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithOnStart(func(context.Context) error {
			return sserr.New(sserr.CodeInternalDatabase, "db down")
		}))

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternalDatabase)
}

func TestService_StopHookFailure(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithOnStop(func(context.Context) error { return errors.New("close failed") }))

	require.NoError(t, svc.Start(context.Background()))
	err := svc.Stop(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_StartCanceled(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Start(ctx)
	testutil.RequireErrorCode(t, err, sserr.CodeTimeout)
	assert.Equal(t, StateUnknown, svc.State())
}

func TestService_DoubleStart(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0"))
	require.NoError(t, svc.Start(context.Background()))

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeConflictStateTransition)
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_HandlerPanicRecovered(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		OnStateChange(func(State, State) { panic("boom") }))

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
}

// ===========================================================================
// Health Tests
// ===========================================================================

func TestService_Health(t *testing.T) {
	t.Parallel()
	redisErr := errors.New("connection refused")
	healthy := true
	svc := mustBuild(t, NewBuilder("authn", "1.0.0").
		WithComponent("postgres", func(context.Context) error { return nil }).
		WithComponent("redis", func(context.Context) error {
			if healthy {
				return nil
			}
			return redisErr
		}))

	ctx := context.Background()
	testutil.RequireErrorCode(t, svc.Health(ctx), sserr.CodeUnavailable)

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Health(ctx))

	healthy = false
	err := svc.Health(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, redisErr)
	assert.Contains(t, err.Error(), `component "redis"`)
	assert.NotContains(t, err.Error(), "postgres")
}

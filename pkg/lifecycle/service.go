package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/lifecycle"

// Hook runs during a transition. A failing hook moves the service to
// [StateFailed].
type Hook func(ctx context.Context) error

// StateChangeHandler observes every transition. Handlers run under the
// state lock and must not call back into the service.
type StateChangeHandler func(old, new State)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Component is a named dependency whose health contributes to the
// service's health.
type Component struct {
	Name  string
	Check HealthCheck
}

// Info is a snapshot of a service for status endpoints.
type Info struct {
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	State      State         `json:"state"`
	Components []string      `json:"components"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	Uptime     time.Duration `json:"uptime,omitempty"`
}

// Service is a thread-safe lifecycle state machine with hooks. Build one
// with [Builder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	components    []Component
	onStart       Hook
	onStop        Hook
	stateHandlers []StateChangeHandler
	logger        *slog.Logger
	tracer        trace.Tracer
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a point-in-time snapshot.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state, Components: make([]string, len(s.components))}
	for i, c := range s.components {
		info.Components[i] = c.Name
	}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// SetState validates and applies a transition, then notifies handlers.
// An illegal transition is [sserr.CodeConflictStateTransition].
func (s *Service) SetState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflictStateTransition,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Start runs the start hook between Starting and Running. A canceled
// context returns before any transition.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			return fail(span, wrapHookError(err, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs the stop hook between Stopping and Stopped. Stopping a
// terminal service is a no-op, so Stop is safe in deferred cleanup.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: stop canceled before execution"))
	}
	if err := s.SetState(StateStopping); err != nil {
		return fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			return fail(span, wrapHookError(err, "lifecycle: stop hook failed"))
		}
	}

	if err := s.SetState(StateStopped); err != nil {
		return fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Health reports [sserr.CodeUnavailable] unless the service is running
// and every component check passes. Failing checks are joined.
func (s *Service) Health(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}
	var errs []error
	for _, c := range s.components {
		if err := c.Check(ctx); err != nil {
			errs = append(errs, sserr.Wrapf(err, sserr.CodeUnavailableDependency,
				"lifecycle: component %q is unhealthy", c.Name))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lifecycle."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.name", s.name)),
	)
}

// wrapHookError keeps a hook's own classification and wraps anything
// else as internal.
func wrapHookError(err error, message string) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeInternal, message)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

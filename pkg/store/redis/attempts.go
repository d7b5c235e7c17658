// Package redis stores login attempts in Redis.
//
// An attempt is a JSON document under "attempt:<id>" that expires shortly
// after the attempt itself does. Once the provider has called back, a
// second key "attempt-code:<local code>" points at the attempt id so the
// code exchange can find it. Lookups by code always re-check the code and
// state stored in the document itself.
//
// State changes go through [AttemptStore.Transition], a server-side
// compare-and-set that writes the document and the code index in one
// script, so two racing transitions from the same state cannot both win.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rdclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/store/redis"

// DefaultRetention is how long an attempt stays readable after it expires,
// so late callbacks find it and fail it instead of seeing NotFound.
const DefaultRetention = 10 * time.Minute

// KV is the subset of the redis client the store needs.
type KV interface {
	Key(parts ...string) string
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}

var _ KV = (*rdclient.Client)(nil)

// AttemptStore persists [models.LoginAttempt] records.
type AttemptStore struct {
	kv        KV
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration
	tracer    trace.Tracer
}

// Option configures an AttemptStore.
type Option func(*AttemptStore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *AttemptStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now when computing key lifetimes.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetention overrides [DefaultRetention].
func WithRetention(d time.Duration) Option {
	return func(s *AttemptStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewAttemptStore returns a store backed by kv.
func NewAttemptStore(kv KV, opts ...Option) *AttemptStore {
	s := &AttemptStore{
		kv:        kv,
		logger:    slog.Default(),
		now:       time.Now,
		retention: DefaultRetention,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AttemptStore) attemptKey(id uuid.UUID) string {
	return s.kv.Key("attempt", id.String())
}

func (s *AttemptStore) codeKey(code string) string {
	return s.kv.Key("attempt-code", code)
}

// Get returns the attempt with id, or an error carrying
// [sserr.CodeNotFoundLoginAttempt].
func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*models.LoginAttempt, error) {
	ctx, span := s.startSpan(ctx, "Get")
	defer span.End()

	attempt, err := s.load(ctx, id)
	finishSpan(span, err)
	return attempt, err
}

// GetByCodeAndState returns the attempt whose local code is exactly code
// and whose state is state. Any mismatch is reported as not found.
func (s *AttemptStore) GetByCodeAndState(ctx context.Context, code string, state models.AttemptState) (*models.LoginAttempt, error) {
	ctx, span := s.startSpan(ctx, "GetByCodeAndState")
	defer span.End()
	span.SetAttributes(attribute.String("login.attempt_state", state.String()))

	attempt, err := s.findByCode(ctx, code, state)
	finishSpan(span, err)
	return attempt, err
}

func (s *AttemptStore) findByCode(ctx context.Context, code string, state models.AttemptState) (*models.LoginAttempt, error) {
	if code == "" {
		return nil, attemptNotFound()
	}
	raw, err := s.kv.Get(ctx, s.codeKey(code))
	if err != nil {
		return nil, classify(err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, sserr.InvariantViolation("store: login code index holds a malformed attempt id")
	}
	attempt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if attempt.AuthzCode != code || attempt.State != state {
		return nil, attemptNotFound()
	}
	return attempt, nil
}

// Upsert writes the attempt and, when it carries a local code, the code
// index, without looking at what is stored. It is meant for new attempts;
// state changes use [AttemptStore.Transition]. Both keys live until
// ExpiresAt plus the retention window.
func (s *AttemptStore) Upsert(ctx context.Context, attempt *models.LoginAttempt) error {
	ctx, span := s.startSpan(ctx, "Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("login.attempt_state", attempt.State.String()))

	err := s.write(ctx, attempt)
	finishSpan(span, err)
	return err
}

func (s *AttemptStore) write(ctx context.Context, attempt *models.LoginAttempt) error {
	doc, ttl, err := s.encode(attempt)
	if err != nil {
		return err
	}

	if err := s.kv.Set(ctx, s.attemptKey(attempt.ID), doc, ttl); err != nil {
		return err
	}
	if attempt.AuthzCode != "" {
		if err := s.kv.Set(ctx, s.codeKey(attempt.AuthzCode), attempt.ID.String(), ttl); err != nil {
			return err
		}
	}
	return nil
}

// transitionScript replaces the attempt document only while its stored
// state still equals ARGV[1], and writes the code index in the same step.
//
//	KEYS[1] attempt key, KEYS[2] optional code index key
//	ARGV[1] expected state, ARGV[2] document, ARGV[3] ttl in ms, ARGV[4] attempt id
//
// It returns 1 on success, 0 on a state mismatch and -1 when the attempt
// is gone.
const transitionScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then return -1 end
if cjson.decode(cur)['attempt_state'] ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
if KEYS[2] then redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[3]) end
return 1
`

// Transition writes attempt only if the stored copy is still in state
// from. A concurrent writer that got there first yields
// [sserr.CodeConflictStateTransition]; a missing attempt yields
// [sserr.CodeNotFoundLoginAttempt].
func (s *AttemptStore) Transition(ctx context.Context, attempt *models.LoginAttempt, from models.AttemptState) error {
	ctx, span := s.startSpan(ctx, "Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("login.attempt_state.from", from.String()),
		attribute.String("login.attempt_state", attempt.State.String()),
	)

	err := s.compareAndSet(ctx, attempt, from)
	finishSpan(span, err)
	return err
}

func (s *AttemptStore) compareAndSet(ctx context.Context, attempt *models.LoginAttempt, from models.AttemptState) error {
	if !models.ValidAttemptTransition(from, attempt.State) {
		return sserr.Newf(sserr.CodeConflictStateTransition,
			"store: login attempt cannot move from %s to %s", from, attempt.State)
	}
	doc, ttl, err := s.encode(attempt)
	if err != nil {
		return err
	}

	keys := []string{s.attemptKey(attempt.ID)}
	if attempt.AuthzCode != "" {
		keys = append(keys, s.codeKey(attempt.AuthzCode))
	}
	res, err := s.kv.Eval(ctx, transitionScript, keys, from.String(), doc, ttl.Milliseconds(), attempt.ID.String())
	if err != nil {
		return err
	}
	n, ok := res.(int64)
	if !ok {
		return sserr.InvariantViolation("store: unexpected reply from login attempt transition")
	}
	switch n {
	case 1:
		return nil
	case 0:
		return sserr.New(sserr.CodeConflictStateTransition, "store: login attempt changed state concurrently")
	default:
		return attemptNotFound()
	}
}

func (s *AttemptStore) encode(attempt *models.LoginAttempt) ([]byte, time.Duration, error) {
	if err := attempt.Validate(); err != nil {
		return nil, 0, sserr.Wrap(err, sserr.CodeInternalInvariant, "store: refusing to store inconsistent login attempt")
	}
	doc, err := json.Marshal(attempt)
	if err != nil {
		return nil, 0, sserr.Wrap(err, sserr.CodeInternal, "store: encode login attempt")
	}

	ttl := s.retention
	if remaining := attempt.ExpiresAt.Sub(s.now()); remaining > 0 {
		ttl += remaining
	}
	return doc, ttl, nil
}

func (s *AttemptStore) load(ctx context.Context, id uuid.UUID) (*models.LoginAttempt, error) {
	raw, err := s.kv.Get(ctx, s.attemptKey(id))
	if err != nil {
		return nil, classify(err)
	}
	var attempt models.LoginAttempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		s.logger.ErrorContext(ctx, "stored login attempt is not valid json", "attempt_id", id)
		return nil, sserr.InvariantViolation("store: stored login attempt is not valid json")
	}
	if err := attempt.Validate(); err != nil {
		s.logger.ErrorContext(ctx, "stored login attempt is inconsistent", "attempt_id", id, "error", err)
		return nil, sserr.Wrap(err, sserr.CodeInternalInvariant, "store: stored login attempt is inconsistent")
	}
	return &attempt, nil
}

func attemptNotFound() *sserr.Error {
	return sserr.New(sserr.CodeNotFoundLoginAttempt, "store: login attempt not found")
}

func classify(err error) error {
	if errors.Is(err, rdclient.Nil) {
		return attemptNotFound()
	}
	return err
}

func (s *AttemptStore) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "attempts."+op)
}

func finishSpan(span trace.Span, err error) {
	if err != nil && !sserr.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

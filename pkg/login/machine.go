// Package login drives a client's login through a remote identity
// provider.
//
// An attempt is created when a client asks to log in, moves to
// remote_authenticated when the provider calls back with its code, and
// ends completed once the client exchanges the local code this package
// mints, or failed at any point before that. The local code is always
// generated here and never echoes the provider's code.
package login

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/login"

// DefaultAttemptTTL is how long a client has to finish a login.
const DefaultAttemptTTL = 5 * time.Minute

// AttemptStore persists login attempts.
type AttemptStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LoginAttempt, error)
	// GetByCodeAndState returns the attempt whose local code is code and
	// whose state is state, or a not-found error.
	GetByCodeAndState(ctx context.Context, code string, state models.AttemptState) (*models.LoginAttempt, error)
	// Upsert stores a new attempt.
	Upsert(ctx context.Context, attempt *models.LoginAttempt) error
	// Transition stores attempt only if the stored copy is still in state
	// from, and otherwise returns a CodeConflictStateTransition error.
	Transition(ctx context.Context, attempt *models.LoginAttempt, from models.AttemptState) error
}

// Config configures a Machine.
type Config struct {
	// PublicURL is the externally reachable base URL of this service.
	// Provider callbacks land on PublicURL/login/oauth/<provider>/callback.
	PublicURL  string        `yaml:"public_url" json:"public_url" env:"PUBLIC_URL" required:"true"`
	AttemptTTL time.Duration `yaml:"attempt_ttl" json:"attempt_ttl" env:"ATTEMPT_TTL" envDefault:"5m"`
}

// CallbackURL returns the provider redirect URL for provider.
func (c Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/login/oauth/%s/callback", strings.TrimRight(c.PublicURL, "/"), provider)
}

// Machine applies state transitions to login attempts. It is safe for
// concurrent use. Every transition is a compare-and-set at the store, so
// of two racing transitions out of the same state exactly one lands.
type Machine struct {
	store     AttemptStore
	providers *Registry
	cfg       Config
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHTTPClient sets the client used to talk to providers.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Machine) {
		if c != nil {
			m.client = c
		}
	}
}

// NewMachine returns a Machine over store and providers.
func NewMachine(store AttemptStore, providers *Registry, cfg Config, opts ...Option) *Machine {
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = DefaultAttemptTTL
	}
	m := &Machine{
		store:     store,
		providers: providers,
		cfg:       cfg,
		client:    http.DefaultClient,
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers returns the provider registry.
func (m *Machine) Providers() *Registry { return m.providers }

// Start creates an attempt in the created state. The provider state and
// provider PKCE verifier are generated here.
func (m *Machine) Start(ctx context.Context, req models.NewLoginAttempt) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "Start", attribute.String("login.provider", req.Provider))
	defer func() { finishSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := m.providers.Get(req.Provider); !ok {
		return nil, sserr.Validationf("login: unknown provider %q", req.Provider)
	}

	now := m.now()
	attempt := &models.LoginAttempt{
		ID:                   uuid.New(),
		State:                models.AttemptStateCreated,
		ClientID:             req.ClientID,
		RedirectURI:          req.RedirectURI,
		ClientState:          req.ClientState,
		PKCEChallenge:        req.PKCEChallenge,
		PKCEChallengeMethod:  req.PKCEChallengeMethod,
		Scope:                req.Scope,
		ExpiresAt:            now.Add(m.cfg.AttemptTTL),
		Provider:             req.Provider,
		ProviderState:        rand.Text(),
		ProviderPKCEVerifier: oauth2.GenerateVerifier(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if attempt.PKCEChallenge != "" && attempt.PKCEChallengeMethod == "" {
		attempt.PKCEChallengeMethod = "S256"
	}
	if err := m.store.Upsert(ctx, attempt); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "login attempt started",
		slog.String("attempt_id", attempt.ID.String()),
		slog.String("provider", attempt.Provider),
		slog.String("client_id", attempt.ClientID))
	return attempt, nil
}

// AuthorizationURL returns the provider URL to send the user to for
// attempt.
func (m *Machine) AuthorizationURL(attempt *models.LoginAttempt) (string, error) {
	p, ok := m.providers.Get(attempt.Provider)
	if !ok {
		return "", sserr.Validationf("login: unknown provider %q", attempt.Provider)
	}
	return AuthorizationURL(p, m.cfg.CallbackURL(p.Name()), attempt.ProviderState, attempt.ProviderPKCEVerifier)
}

// Authenticate records the provider's code on the attempt, mints a fresh
// local code and moves the attempt to remote_authenticated. An attempt
// already in that state is returned unchanged. An expired attempt is
// failed and an expiry error returned.
func (m *Machine) Authenticate(ctx context.Context, id uuid.UUID, providerCode string) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "Authenticate", attribute.String("login.attempt_id", id.String()))
	defer func() { finishSpan(span, err) }()

	attempt, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if attempt.State == models.AttemptStateRemoteAuthenticated {
		return attempt, nil
	}
	if attempt.State.IsTerminal() {
		return nil, sserr.Newf(sserr.CodeConflictStateTransition,
			"login: attempt is already %s", attempt.State)
	}

	now := m.now()
	if attempt.Expired(now) {
		if err := m.fail(ctx, attempt, "expired before provider callback", now); err != nil {
			return nil, err
		}
		return nil, sserr.New(sserr.CodeAuthenticationExpired, "login: attempt expired")
	}
	if providerCode == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "login: provider code is required")
	}

	from := attempt.State
	attempt.ProviderAuthzCode = providerCode
	attempt.AuthzCode = rand.Text()
	if err := attempt.Transition(models.AttemptStateRemoteAuthenticated, now); err != nil {
		return nil, err
	}
	if err := m.store.Transition(ctx, attempt, from); err != nil {
		if !isStateConflict(err) {
			return nil, err
		}
		// Another callback got there first; its code is the only one.
		current, getErr := m.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.State != models.AttemptStateRemoteAuthenticated {
			return nil, err
		}
		return current, nil
	}
	return attempt, nil
}

// Callback is what a provider sends back to the callback URL.
type Callback struct {
	AttemptID uuid.UUID
	State     string
	Code      string
	// Error is set when the provider refused the login.
	Error string
}

// HandleCallback checks the provider state against the attempt and then
// either authenticates or fails it. A callback whose state does not match
// is rejected and leaves the attempt untouched.
func (m *Machine) HandleCallback(ctx context.Context, cb Callback) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "HandleCallback", attribute.String("login.attempt_id", cb.AttemptID.String()))
	defer func() { finishSpan(span, err) }()

	attempt, err := m.store.Get(ctx, cb.AttemptID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(cb.State), []byte(attempt.ProviderState)) != 1 {
		m.logger.WarnContext(ctx, "provider callback state mismatch",
			slog.String("attempt_id", attempt.ID.String()))
		return nil, sserr.FailedToAuthenticate(nil)
	}
	if cb.Error != "" {
		if _, err := m.Fail(ctx, cb.AttemptID, "provider error: "+cb.Error); err != nil {
			return nil, err
		}
		return nil, sserr.FailedToAuthenticate(nil)
	}
	return m.Authenticate(ctx, cb.AttemptID, cb.Code)
}

// LookupByCode returns the remote_authenticated attempt holding code.
func (m *Machine) LookupByCode(ctx context.Context, code string) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "LookupByCode")
	defer func() { finishSpan(span, err) }()

	return m.store.GetByCodeAndState(ctx, code, models.AttemptStateRemoteAuthenticated)
}

// Fail moves the attempt to failed, recording reason. Failing a failed
// attempt is a no-op; failing a completed one is a state conflict.
func (m *Machine) Fail(ctx context.Context, id uuid.UUID, reason string) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "Fail", attribute.String("login.attempt_id", id.String()))
	defer func() { finishSpan(span, err) }()

	attempt, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if attempt.State == models.AttemptStateFailed {
		return attempt, nil
	}
	if err := m.fail(ctx, attempt, reason, m.now()); err != nil {
		if !isStateConflict(err) {
			return nil, err
		}
		current, getErr := m.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.State != models.AttemptStateFailed {
			return nil, err
		}
		return current, nil
	}
	return attempt, nil
}

func (m *Machine) fail(ctx context.Context, attempt *models.LoginAttempt, reason string, now time.Time) error {
	from := attempt.State
	if err := attempt.Transition(models.AttemptStateFailed, now); err != nil {
		return err
	}
	attempt.Error = reason
	if err := m.store.Transition(ctx, attempt, from); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "login attempt failed",
		slog.String("attempt_id", attempt.ID.String()),
		slog.String("reason", reason))
	return nil
}

// CodeExchange is a client's request to redeem a local code.
type CodeExchange struct {
	Code        string
	ClientID    string
	RedirectURI string
	// Verifier is the client's PKCE verifier. Required when the attempt
	// carries a challenge.
	Verifier string
}

// Complete redeems a local code. The client id and redirect URI must
// match the attempt and the verifier must match its PKCE challenge. Any
// mismatch fails the attempt. Every rejection is FailedToAuthenticate so
// the client learns nothing about which check failed. A code is redeemed
// at most once: when exchanges race, one completes and the rest fail.
func (m *Machine) Complete(ctx context.Context, req CodeExchange) (_ *models.LoginAttempt, err error) {
	ctx, span := m.startSpan(ctx, "Complete")
	defer func() { finishSpan(span, err) }()

	attempt, err := m.LookupByCode(ctx, req.Code)
	if err != nil {
		if sserr.IsNotFound(err) {
			return nil, sserr.FailedToAuthenticate(err)
		}
		return nil, err
	}

	now := m.now()
	if reason := checkExchange(attempt, req, now); reason != "" {
		if err := m.fail(ctx, attempt, reason, now); err != nil {
			if isStateConflict(err) || sserr.IsNotFound(err) {
				return nil, sserr.FailedToAuthenticate(err)
			}
			return nil, err
		}
		m.logger.WarnContext(ctx, "code exchange rejected",
			slog.String("attempt_id", attempt.ID.String()),
			slog.String("reason", reason))
		return nil, sserr.FailedToAuthenticate(nil)
	}

	if err := attempt.Transition(models.AttemptStateCompleted, now); err != nil {
		return nil, err
	}
	if err := m.store.Transition(ctx, attempt, models.AttemptStateRemoteAuthenticated); err != nil {
		if isStateConflict(err) || sserr.IsNotFound(err) {
			m.logger.WarnContext(ctx, "code exchange lost a race",
				slog.String("attempt_id", attempt.ID.String()))
			return nil, sserr.FailedToAuthenticate(err)
		}
		return nil, err
	}
	return attempt, nil
}

func isStateConflict(err error) bool {
	return sserr.HasCode(err, sserr.CodeConflictStateTransition)
}

func checkExchange(attempt *models.LoginAttempt, req CodeExchange, now time.Time) string {
	switch {
	case attempt.Expired(now):
		return "expired before code exchange"
	case req.ClientID != attempt.ClientID:
		return "client id mismatch"
	case req.RedirectURI != attempt.RedirectURI:
		return "redirect uri mismatch"
	}
	if attempt.PKCEChallenge == "" {
		return ""
	}
	if req.Verifier == "" {
		return "pkce verifier missing"
	}
	want := oauth2.S256ChallengeFromVerifier(req.Verifier)
	if subtle.ConstantTimeCompare([]byte(want), []byte(attempt.PKCEChallenge)) != 1 {
		return "pkce verifier mismatch"
	}
	return ""
}

// ExternalIdentity redeems the provider code stored on attempt and
// fetches the provider account it belongs to.
func (m *Machine) ExternalIdentity(ctx context.Context, attempt *models.LoginAttempt) (_ ExternalIdentity, err error) {
	ctx, span := m.startSpan(ctx, "ExternalIdentity", attribute.String("login.provider", attempt.Provider))
	defer func() { finishSpan(span, err) }()

	p, ok := m.providers.Get(attempt.Provider)
	if !ok {
		return ExternalIdentity{}, sserr.InvariantViolation("login: attempt names an unregistered provider")
	}
	if attempt.ProviderAuthzCode == "" {
		return ExternalIdentity{}, sserr.InvariantViolation("login: attempt has no provider code")
	}
	tok, err := Exchange(ctx, p, m.client, m.cfg.CallbackURL(p.Name()),
		attempt.ProviderAuthzCode, attempt.ProviderPKCEVerifier)
	if err != nil {
		return ExternalIdentity{}, err
	}
	return FetchUserInfo(ctx, p, m.client, tok.AccessToken)
}

func (m *Machine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "login."+op, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

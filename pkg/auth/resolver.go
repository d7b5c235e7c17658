package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authn/pkg/apikey"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authn/pkg/token"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/auth"

// Store is the identity and key lookup the resolver depends on.
type Store interface {
	GetIdentity(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Identity, error)
	FindKeysBySignature(ctx context.Context, signature string, excludeExpired, excludeDeleted bool) ([]*models.APIKey, error)
}

// TokenRecords looks up issued token records for the revocation check.
type TokenRecords interface {
	GetAccessToken(ctx context.Context, id uuid.UUID) (*models.AccessToken, error)
}

// ClaimsParser verifies signed token text.
type ClaimsParser interface {
	Parse(ctx context.Context, text string) (*token.Claims, error)
}

var _ ClaimsParser = (*token.Verifier)(nil)

// Authenticator resolves a bearer value to a Caller. [*Resolver]
// implements it; the middleware and interceptors consume it.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*Caller, error)
}

// Resolver implements caller resolution. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	store       Store
	signer      credentials.Signer
	verifier    ClaimsParser
	revocations TokenRecords
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	tracer      trace.Tracer
}

var _ Authenticator = (*Resolver)(nil)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for the in-process key expiry check.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithVerifier enables bearer tokens in [Resolver.Authenticate]. Without
// it, only API keys authenticate there.
func WithVerifier(v ClaimsParser) Option {
	return func(r *Resolver) { r.verifier = v }
}

// WithRevocationCheck rejects claims whose token record is revoked or
// missing.
func WithRevocationCheck(records TokenRecords) Option {
	return func(r *Resolver) { r.revocations = records }
}

// WithMetrics records resolution outcomes.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver returns a Resolver. signer must be the key API key
// signatures were computed with, normally the keyring default.
func NewResolver(store Store, signer credentials.Signer, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		signer: signer,
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authenticate resolves a bearer value. Values with three dot separated
// segments are treated as signed tokens, anything else as an API key.
func (r *Resolver) Authenticate(ctx context.Context, bearer string) (*Caller, error) {
	if !looksLikeToken(bearer) {
		return r.ResolveAPIKey(ctx, bearer)
	}
	if r.verifier == nil {
		r.logger.InfoContext(ctx, "auth: bearer token presented but tokens are not accepted")
		r.metrics.observe(CredentialToken, outcomeDenied)
		return nil, sserr.FailedToAuthenticate(nil)
	}
	claims, err := r.verifier.Parse(ctx, bearer)
	if err != nil {
		r.logger.InfoContext(ctx, "auth: token verification failed", "reason", sserr.GetCode(err).String())
		r.metrics.observe(CredentialToken, outcomeDenied)
		return nil, sserr.FailedToAuthenticate(err)
	}
	return r.ResolveClaims(ctx, claims)
}

// Resolve dispatches on the credential form.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (*Caller, error) {
	if cred.Claims != nil {
		return r.ResolveClaims(ctx, cred.Claims)
	}
	return r.ResolveAPIKey(ctx, cred.APIKey)
}

// ResolveAPIKey verifies a presented API key and resolves its caller.
// Parse failures and lookup misses are both FailedToAuthenticate.
func (r *Resolver) ResolveAPIKey(ctx context.Context, presented string) (*Caller, error) {
	ctx, span := r.tracer.Start(ctx, "auth.ResolveAPIKey")
	defer span.End()

	caller, err := r.resolveAPIKey(ctx, presented)
	r.finish(ctx, span, CredentialAPIKey, caller, err)
	return caller, err
}

func (r *Resolver) resolveAPIKey(ctx context.Context, presented string) (*Caller, error) {
	raw, signature, err := apikey.Signature(presented, r.signer)
	if err != nil {
		if sserr.IsFailedToParse(err) {
			r.logger.InfoContext(ctx, "auth: presented api key does not parse", "reason", err.Error())
			return nil, sserr.FailedToAuthenticate(err)
		}
		return nil, err
	}

	keys, err := r.store.FindKeysBySignature(ctx, signature, true, true)
	if err != nil {
		return nil, err
	}
	switch len(keys) {
	case 0:
		r.logger.InfoContext(ctx, "auth: api key not found", "identity_id", raw.IdentityID)
		return nil, sserr.FailedToAuthenticate(nil)
	case 1:
	default:
		r.logger.ErrorContext(ctx, "auth: api key signature matches more than one key",
			"identity_id", raw.IdentityID, "matches", len(keys))
		return nil, sserr.InvariantViolation("auth: api key signature is not unique")
	}

	key := keys[0]
	if key.IdentityID != raw.IdentityID {
		r.logger.ErrorContext(ctx, "auth: stored api key owner differs from presented owner",
			"key_id", key.ID, "identity_id", raw.IdentityID)
		return nil, sserr.InvariantViolation("auth: api key owner mismatch")
	}
	if !key.Active(r.now()) {
		r.logger.InfoContext(ctx, "auth: api key is expired or deleted", "key_id", key.ID)
		return nil, sserr.FailedToAuthenticate(nil)
	}

	return r.resolveIdentity(ctx, raw.IdentityID, key.Permissions, CredentialAPIKey)
}

// ResolveClaims resolves the caller for claims that were verified
// upstream.
func (r *Resolver) ResolveClaims(ctx context.Context, claims *token.Claims) (*Caller, error) {
	ctx, span := r.tracer.Start(ctx, "auth.ResolveClaims")
	defer span.End()

	caller, err := r.resolveClaims(ctx, claims)
	r.finish(ctx, span, CredentialToken, caller, err)
	return caller, err
}

func (r *Resolver) resolveClaims(ctx context.Context, claims *token.Claims) (*Caller, error) {
	if claims == nil {
		return nil, sserr.FailedToAuthenticate(nil)
	}
	identityID, err := claims.IdentityID()
	if err != nil {
		r.logger.InfoContext(ctx, "auth: claims audience does not parse", "reason", err.Error())
		return nil, sserr.FailedToAuthenticate(err)
	}
	if r.revocations != nil {
		if err := r.checkRevocation(ctx, claims); err != nil {
			return nil, err
		}
	}
	return r.resolveIdentity(ctx, identityID, claims.Permissions, CredentialToken)
}

func (r *Resolver) checkRevocation(ctx context.Context, claims *token.Claims) error {
	jti, err := claims.TokenID()
	if err != nil {
		r.logger.InfoContext(ctx, "auth: claims jti does not parse", "reason", err.Error())
		return sserr.FailedToAuthenticate(err)
	}
	record, err := r.revocations.GetAccessToken(ctx, jti)
	if sserr.IsNotFound(err) {
		r.logger.InfoContext(ctx, "auth: no record for token", "jti", jti)
		return sserr.FailedToAuthenticate(err)
	}
	if err != nil {
		return err
	}
	if record.Revoked() {
		r.logger.InfoContext(ctx, "auth: token is revoked", "jti", jti)
		return sserr.FailedToAuthenticate(nil)
	}
	return nil
}

func (r *Resolver) resolveIdentity(ctx context.Context, id uuid.UUID, granted permissions.Set, kind CredentialKind) (*Caller, error) {
	identity, err := r.store.GetIdentity(ctx, id, false)
	if sserr.IsNotFound(err) {
		r.logger.InfoContext(ctx, "auth: credential owner is absent or deleted", "identity_id", id)
		return nil, sserr.FailedToAuthenticate(err)
	}
	if err != nil {
		return nil, err
	}
	if identity.Deleted() {
		r.logger.InfoContext(ctx, "auth: credential owner is deleted", "identity_id", id)
		return nil, sserr.FailedToAuthenticate(nil)
	}

	return &Caller{
		IdentityID:  identity.ID,
		Permissions: granted.Intersect(identity.Permissions).Expand(identity),
		Credential:  kind,
	}, nil
}

func (r *Resolver) finish(ctx context.Context, span trace.Span, kind CredentialKind, caller *Caller, err error) {
	span.SetAttributes(attribute.String("authn.credential", kind.String()))
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("authn.identity_id", caller.IdentityID.String()))
		r.metrics.observe(kind, outcomeSuccess)
	case sserr.IsAuthentication(err):
		r.logger.WarnContext(ctx, "auth: authentication failed", "credential", kind.String(), "reason", reason(err))
		span.SetStatus(codes.Error, "authentication failed")
		r.metrics.observe(kind, outcomeDenied)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.observe(kind, outcomeError)
	}
}

// reason names the underlying cause of an authentication failure for logs.
func reason(err error) string {
	var e *sserr.Error
	if !errors.As(err, &e) || e.Cause == nil {
		return "rejected"
	}
	if code := sserr.GetCode(e.Cause); code != "" {
		return code.String()
	}
	return e.Cause.Error()
}

func looksLikeToken(bearer string) bool {
	return strings.Count(bearer, ".") == 2
}

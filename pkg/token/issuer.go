package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/token"

// TokenStore records issued tokens.
type TokenStore interface {
	CreateAccessToken(ctx context.Context, t models.NewAccessToken) (*models.AccessToken, error)
	RevokeAccessToken(ctx context.Context, id uuid.UUID) (*models.AccessToken, error)
	ListAccessTokens(ctx context.Context, identityID uuid.UUID) ([]*models.AccessToken, error)
}

// Config holds the token lifetime policy.
type Config struct {
	// Issuer is written to iss. Optional.
	Issuer string `yaml:"issuer" json:"issuer" env:"ISSUER"`

	// DefaultTTL applies when no expiry is requested.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL" envDefault:"1h"`

	// MaxTTL bounds any requested expiry.
	MaxTTL time.Duration `yaml:"max_ttl" json:"max_ttl" env:"MAX_TTL" envDefault:"24h"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.DefaultTTL <= 0 || c.MaxTTL <= 0 {
		return sserr.New(sserr.CodeValidationRange, "token: ttls must be positive")
	}
	if c.DefaultTTL > c.MaxTTL {
		return sserr.New(sserr.CodeValidationRange, "token: default ttl exceeds max ttl")
	}
	return nil
}

// Issued is the result of issuing a token.
type Issued struct {
	Claims    *Claims
	Signed    string
	Record    *models.AccessToken
	ExpiresAt time.Time
}

// Issuer mints tokens signed by the keyring default.
type Issuer struct {
	cfg    Config
	store  TokenStore
	keys   *credentials.Keyring
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures an Issuer or Verifier.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewIssuer returns an Issuer.
func NewIssuer(cfg Config, store TokenStore, keys *credentials.Keyring, opts ...Option) *Issuer {
	o := buildOptions(opts)
	return &Issuer{
		cfg:    cfg,
		store:  store,
		keys:   keys,
		logger: o.logger,
		now:    o.now,
		tracer: otel.Tracer(tracerName),
	}
}

// Issue mints a token for identity. A nil expiresAt means now+DefaultTTL;
// an expiry past now+MaxTTL is ExcessTokenExpiration. The granted
// permissions are requested ∩ identity.Permissions.
func (i *Issuer) Issue(ctx context.Context, identity *models.Identity, requested permissions.Set, expiresAt *time.Time) (*Issued, error) {
	ctx, span := i.tracer.Start(ctx, "token.Issue",
		trace.WithAttributes(attribute.String("authn.identity_id", identity.ID.String())))
	defer span.End()

	now := i.now()
	exp := now.Add(i.cfg.DefaultTTL)
	if expiresAt != nil {
		exp = *expiresAt
	}
	if exp.After(now.Add(i.cfg.MaxTTL)) {
		err := sserr.ExcessTokenExpiration("token: requested expiry exceeds the maximum token lifetime").
			WithDetail("max_ttl", i.cfg.MaxTTL.String())
		finishSpan(span, err)
		return nil, err
	}
	if !exp.After(now) {
		err := sserr.New(sserr.CodeValidationRange, "token: expiry must be in the future")
		finishSpan(span, err)
		return nil, err
	}
	if identity.Deleted() {
		err := sserr.New(sserr.CodeNotFoundIdentity, "token: identity does not exist")
		finishSpan(span, err)
		return nil, err
	}

	jti := uuid.New()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{identity.ID.String()},
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti.String(),
		},
		Permissions: requested.Intersect(identity.Permissions),
	}

	// Sign first so a signing failure leaves no record behind.
	signed, err := sign(claims, i.keys.Default())
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	record, err := i.store.CreateAccessToken(ctx, models.NewAccessToken{
		ID:         jti,
		IdentityID: identity.ID,
		ExpiresAt:  exp,
	})
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	i.logger.DebugContext(ctx, "issued access token",
		"identity_id", identity.ID.String(),
		"jti", jti.String(),
		"expires_at", exp,
	)
	span.SetAttributes(attribute.String("authn.jti", jti.String()))
	return &Issued{Claims: claims, Signed: signed, Record: record, ExpiresAt: exp}, nil
}

// Revoke marks a token record revoked.
func (i *Issuer) Revoke(ctx context.Context, jti uuid.UUID) (*models.AccessToken, error) {
	ctx, span := i.tracer.Start(ctx, "token.Revoke")
	defer span.End()

	rec, err := i.store.RevokeAccessToken(ctx, jti)
	finishSpan(span, err)
	return rec, err
}

// List returns the token records of an identity.
func (i *Issuer) List(ctx context.Context, identityID uuid.UUID) ([]*models.AccessToken, error) {
	ctx, span := i.tracer.Start(ctx, "token.List")
	defer span.End()

	recs, err := i.store.ListAccessTokens(ctx, identityID)
	finishSpan(span, err)
	return recs, err
}

// signerMethod lets jwt sign through a credentials.Signer without the
// private key leaving it.
type signerMethod struct {
	signer credentials.Signer
}

func (m signerMethod) Alg() string { return m.signer.Algorithm() }

func (m signerMethod) Sign(signingString string, _ any) ([]byte, error) {
	return m.signer.Sign([]byte(signingString))
}

func (m signerMethod) Verify(signingString string, sig []byte, _ any) error {
	return m.signer.Verify([]byte(signingString), sig)
}

func sign(claims *Claims, signer credentials.Signer) (string, error) {
	tok := jwt.NewWithClaims(signerMethod{signer: signer}, claims)
	tok.Header["kid"] = signer.KeyID()
	signed, err := tok.SignedString(nil)
	if err != nil {
		if sserr.IsSigningFailure(err) {
			return "", err
		}
		return "", sserr.SigningFailure(err, "token: signing failed")
	}
	return signed, nil
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

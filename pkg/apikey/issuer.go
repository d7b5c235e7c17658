package apikey

import (
	"context"
	"log/slog"
	"time"

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

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/apikey"

// KeyStore persists API key records.
type KeyStore interface {
	UpsertKey(ctx context.Context, key models.NewAPIKey) (*models.APIKey, error)
	DeleteKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListKeys(ctx context.Context, identityID uuid.UUID) ([]*models.APIKey, error)
}

// Issued is the result of issuing a key. Key is the only copy of the
// presentable secret.
type Issued struct {
	Key    credentials.Secret
	Record *models.APIKey
}

// Issuer creates and revokes API keys.
type Issuer struct {
	store     KeyStore
	signer    credentials.Signer
	secretLen int
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithSecretLength sets the random bytes per key. Values below
// MinSecretLength are raised to it.
func WithSecretLength(n int) Option {
	return func(i *Issuer) { i.secretLen = max(n, MinSecretLength) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer returns an Issuer that signs with signer, normally the
// keyring default.
func NewIssuer(store KeyStore, signer credentials.Signer, opts ...Option) *Issuer {
	i := &Issuer{
		store:     store,
		signer:    signer,
		secretLen: DefaultSecretLength,
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a key for owner. Requested permissions outside the owner's
// ceiling are dropped and logged; that is a trim, not an error.
func (i *Issuer) Issue(ctx context.Context, owner *models.Identity, requested permissions.Set, expiresAt time.Time) (*Issued, error) {
	ctx, span := i.tracer.Start(ctx, "apikey.Issue",
		trace.WithAttributes(attribute.String("authn.identity_id", owner.ID.String())))
	defer span.End()

	if owner.Deleted() {
		err := sserr.New(sserr.CodeNotFoundIdentity, "apikey: owner does not exist")
		finishSpan(span, err)
		return nil, err
	}
	if !expiresAt.After(i.now()) {
		err := sserr.New(sserr.CodeValidationRange, "apikey: expiry must be in the future")
		finishSpan(span, err)
		return nil, err
	}

	kept, dropped := requested.Narrow(owner.Permissions)
	if dropped.Len() > 0 {
		i.logger.InfoContext(ctx, "dropped permissions outside owner ceiling",
			"identity_id", owner.ID.String(),
			"dropped", dropped.Strings(),
		)
	}

	raw, err := Generate(owner.ID, i.secretLen)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	signed, err := Sign(raw, i.signer)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	record, err := i.store.UpsertKey(ctx, models.NewAPIKey{
		ID:          uuid.New(),
		IdentityID:  owner.ID,
		Signature:   signed.Signature,
		Permissions: kept,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("authn.key_id", record.ID.String()),
		attribute.Int("authn.dropped_permissions", dropped.Len()),
	)
	return &Issued{Key: signed.Key, Record: record}, nil
}

// Revoke soft-deletes a key.
func (i *Issuer) Revoke(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	ctx, span := i.tracer.Start(ctx, "apikey.Revoke",
		trace.WithAttributes(attribute.String("authn.key_id", id.String())))
	defer span.End()

	key, err := i.store.DeleteKey(ctx, id)
	finishSpan(span, err)
	return key, err
}

// List returns the keys of an identity, including expired and deleted
// ones.
func (i *Issuer) List(ctx context.Context, identityID uuid.UUID) ([]*models.APIKey, error) {
	ctx, span := i.tracer.Start(ctx, "apikey.List")
	defer span.End()

	keys, err := i.store.ListKeys(ctx, identityID)
	finishSpan(span, err)
	return keys, err
}

func finishSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

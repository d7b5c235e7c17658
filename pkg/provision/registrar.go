// Package provision turns a provider account into a local identity.
//
// An account is linked to at most one identity. The first login from an
// account creates a fresh identity holding the default permissions plus
// whatever the configured mappers grant; later logins reuse the linked
// identity and only refresh the link's verified emails.
package provision

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/login"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/provision"

// Store is the persistence the registrar needs.
type Store interface {
	GetIdentity(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Identity, error)
	UpsertIdentity(ctx context.Context, n models.NewIdentity) (*models.Identity, error)
	ListProviderLinks(ctx context.Context, provider, providerID string) ([]*models.ProviderLink, error)
	UpsertProviderLink(ctx context.Context, n models.NewProviderLink) (*models.ProviderLink, error)
	// CreateLinkedIdentity writes an identity and its first link together.
	// It fails with CodeConflictAlreadyExists, writing nothing, when the
	// account already has a live link.
	CreateLinkedIdentity(ctx context.Context, n models.NewIdentity, l models.NewProviderLink) (*models.Identity, error)
}

// Registrar registers provider accounts.
type Registrar struct {
	store    Store
	defaults permissions.Set
	mappers  []Mapper
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registrar) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDefaultPermissions sets the ceiling every new identity starts with.
func WithDefaultPermissions(s permissions.Set) Option {
	return func(r *Registrar) { r.defaults = s }
}

// WithMappers appends mappers consulted for new identities.
func WithMappers(m ...Mapper) Option {
	return func(r *Registrar) { r.mappers = append(r.mappers, m...) }
}

// NewRegistrar returns a Registrar over store.
func NewRegistrar(store Store, opts ...Option) *Registrar {
	r := &Registrar{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register returns the identity linked to ext, creating and linking one
// on first sight. When two first logins race, the one whose link lands
// wins and the other adopts its identity. More than one live link for the
// account is an invariant violation. A tombstoned identity is never
// revived.
func (r *Registrar) Register(ctx context.Context, ext login.ExternalIdentity) (_ *models.Identity, err error) {
	ctx, span := r.tracer.Start(ctx, "provision.Register", trace.WithAttributes(
		attribute.String("provision.provider", ext.Provider)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ext.Provider == "" || ext.ID == "" {
		return nil, sserr.Validation("provision: provider and provider id are required")
	}

	links, err := r.store.ListProviderLinks(ctx, ext.Provider, ext.ID)
	if err != nil {
		return nil, err
	}

	if len(links) == 0 {
		identity, err := r.createLinked(ctx, ext)
		if !sserr.HasCode(err, sserr.CodeConflictAlreadyExists) {
			return identity, err
		}
		r.logger.InfoContext(ctx, "provider account was linked concurrently",
			slog.String("provider", ext.Provider))
		if links, err = r.store.ListProviderLinks(ctx, ext.Provider, ext.ID); err != nil {
			return nil, err
		}
		if len(links) == 0 {
			return nil, sserr.InvariantViolation("provision: link conflict but no live link found")
		}
	}

	if len(links) > 1 {
		r.logger.ErrorContext(ctx, "multiple identities linked to one provider account",
			slog.String("provider", ext.Provider),
			slog.Int("count", len(links)))
		return nil, sserr.InvariantViolation("provision: multiple links for provider account")
	}
	return r.linked(ctx, links[0], ext)
}

// createLinked creates a fresh identity and its link in one write.
func (r *Registrar) createLinked(ctx context.Context, ext login.ExternalIdentity) (*models.Identity, error) {
	r.logger.InfoContext(ctx, "registering new identity for provider account",
		slog.String("provider", ext.Provider))
	grant := r.grantFor(ext)
	identity, err := r.store.CreateLinkedIdentity(ctx,
		models.NewIdentity{
			ID:          uuid.New(),
			Permissions: grant.Permissions,
			Assignments: grant.Assignments,
		},
		models.NewProviderLink{
			ID:         uuid.New(),
			Provider:   ext.Provider,
			ProviderID: ext.ID,
			Emails:     ext.VerifiedEmails,
		})
	if err != nil {
		if !sserr.HasCode(err, sserr.CodeConflictAlreadyExists) {
			r.logger.ErrorContext(ctx, "failed to create identity for provider account",
				slog.String("error", err.Error()))
		}
		return nil, err
	}
	return identity, nil
}

// linked returns the identity behind an existing link, refreshing the
// link's verified emails when they changed.
func (r *Registrar) linked(ctx context.Context, link *models.ProviderLink, ext login.ExternalIdentity) (*models.Identity, error) {
	identity, err := r.store.GetIdentity(ctx, link.IdentityID, true)
	switch {
	case sserr.IsNotFound(err):
		identity, err = r.create(ctx, link.IdentityID, ext)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case identity.Deleted():
		r.logger.WarnContext(ctx, "provider account is linked to a deleted identity",
			slog.String("identity_id", identity.ID.String()))
		return nil, sserr.FailedToAuthenticate(nil)
	}
	if !slices.Equal(link.Emails, ext.VerifiedEmails) {
		if _, err := r.store.UpsertProviderLink(ctx, models.NewProviderLink{
			ID:         link.ID,
			IdentityID: link.IdentityID,
			Provider:   link.Provider,
			ProviderID: link.ProviderID,
			Emails:     ext.VerifiedEmails,
		}); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

func (r *Registrar) create(ctx context.Context, id uuid.UUID, ext login.ExternalIdentity) (*models.Identity, error) {
	grant := r.grantFor(ext)
	identity, err := r.store.UpsertIdentity(ctx, models.NewIdentity{
		ID:          id,
		Permissions: grant.Permissions,
		Assignments: grant.Assignments,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create identity for provider account",
			slog.String("error", err.Error()))
		return nil, err
	}
	return identity, nil
}

// grantFor folds the defaults and every matching mapper into one grant.
func (r *Registrar) grantFor(ext login.ExternalIdentity) Grant {
	perms := r.defaults.Union(permissions.Set{})
	var assignments map[string][]string
	for _, m := range r.mappers {
		g, ok := m.Match(ext)
		if !ok {
			continue
		}
		perms = perms.Union(g.Permissions)
		for kind, ids := range g.Assignments {
			if assignments == nil {
				assignments = make(map[string][]string)
			}
			for _, id := range ids {
				if !slices.Contains(assignments[kind], id) {
					assignments[kind] = append(assignments[kind], id)
				}
			}
		}
	}
	return Grant{Permissions: perms, Assignments: assignments}
}

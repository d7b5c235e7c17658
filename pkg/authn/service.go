// Package authn assembles the authentication core into a running service:
// stores on PostgreSQL and Redis, the signing keyring, token and API key
// issuers, caller resolution, the external login machine, provisioning
// and verification-key publishing, all under one lifecycle.
//
//	svc, err := authn.New(ctx, cfg, authn.WithLogger(logger))
//	if err != nil { ... }
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop(context.Background())
package authn

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/stricklysoft-authn/pkg/apikey"
	"github.com/StricklySoft/stricklysoft-authn/pkg/auth"
	mnclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/minio"
	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	rdclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/jwks"
	"github.com/StricklySoft/stricklysoft-authn/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-authn/pkg/login"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authn/pkg/provision"
	pgstore "github.com/StricklySoft/stricklysoft-authn/pkg/store/postgres"
	rdstore "github.com/StricklySoft/stricklysoft-authn/pkg/store/redis"
	"github.com/StricklySoft/stricklysoft-authn/pkg/token"
)

// ServiceName is reported by Info and in logs.
const ServiceName = "authn"

// Backends are the connected storage clients a Service runs on. New
// builds them from Config; tests pass doubles to Assemble.
type Backends struct {
	DB pgstore.DB
	KV rdstore.KV

	// Uploader is required only when publishing the key set.
	Uploader jwks.Uploader

	// Components contribute to Health.
	Components []lifecycle.Component

	// Close releases the clients on Stop. Optional.
	Close func() error
}

// Service is the assembled authentication core.
type Service struct {
	Store     *pgstore.Store
	Attempts  *rdstore.AttemptStore
	Keys      *credentials.Keyring
	Tokens    *token.Issuer
	Verifier  *token.Verifier
	APIKeys   *apikey.Issuer
	Resolver  *auth.Resolver
	Login     *login.Machine
	Registrar *provision.Registrar

	// JWKS serves the public key set.
	JWKS http.Handler

	// Publisher is nil unless PublishJWKS is set.
	Publisher *jwks.Publisher

	lifecycle *lifecycle.Service
	logger    *slog.Logger
}

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	httpClient *http.Client
	now        func() time.Time
	version    string
}

// Option configures New and Assemble.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer registers resolution metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient sets the client used to reach identity providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock overrides time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithVersion sets the version reported by Info.
func WithVersion(v string) Option {
	return func(o *options) {
		if v != "" {
			o.version = v
		}
	}
}

// New connects to PostgreSQL, Redis and, when publishing keys, MinIO, and
// assembles the service. Clients opened before a failure are closed.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := pgclient.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	kv, err := rdclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	backends := Backends{
		DB: db,
		KV: kv,
		Components: []lifecycle.Component{
			{Name: "postgres", Check: db.Health},
			{Name: "redis", Check: kv.Health},
		},
		Close: func() error {
			db.Close()
			return kv.Close()
		},
	}

	if cfg.PublishJWKS {
		objects, err := mnclient.NewClient(ctx, cfg.MinIO)
		if err != nil {
			_ = backends.Close()
			return nil, err
		}
		backends.Uploader = objects
		backends.Components = append(backends.Components, lifecycle.Component{Name: "minio", Check: objects.Health})
	}

	svc, err := Assemble(cfg, backends, opts...)
	if err != nil {
		_ = backends.Close()
		return nil, err
	}
	return svc, nil
}

// Assemble wires the components over already connected backends. cfg is
// validated by New; Assemble only checks what it builds from.
func Assemble(cfg Config, backends Backends, opts ...Option) (*Service, error) {
	o := options{logger: slog.Default(), now: time.Now, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("service", ServiceName)

	keys, err := credentials.LoadKeyring(cfg.Keys)
	if err != nil {
		return nil, err
	}

	var encryptor credentials.Encryptor
	if cfg.Encryptor.Material != "" {
		if encryptor, err = credentials.NewEncryptor(cfg.Encryptor); err != nil {
			return nil, err
		}
	}

	providers, err := login.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Google.ClientID != "" {
		google, err := login.NewGoogleProvider(cfg.Google, encryptor)
		if err != nil {
			return nil, err
		}
		if err := providers.Register(google); err != nil {
			return nil, err
		}
	}

	defaults, err := cfg.defaultPermissions()
	if err != nil {
		return nil, err
	}
	mappers := make([]provision.Mapper, 0, len(cfg.Mappers))
	for _, mc := range cfg.Mappers {
		m, err := provision.NewMapper(mc)
		if err != nil {
			return nil, err
		}
		mappers = append(mappers, m)
	}

	store := pgstore.New(backends.DB, pgstore.WithLogger(logger), pgstore.WithClock(o.now))
	attempts := rdstore.NewAttemptStore(backends.KV,
		rdstore.WithLogger(logger),
		rdstore.WithClock(o.now),
		rdstore.WithRetention(cfg.AttemptRetention),
	)

	verifier := token.NewVerifier(keys, token.WithLogger(logger), token.WithClock(o.now))
	resolverOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithClock(o.now),
		auth.WithVerifier(verifier),
		auth.WithMetrics(auth.NewMetrics(o.registerer)),
	}
	if cfg.RevocationCheck {
		resolverOpts = append(resolverOpts, auth.WithRevocationCheck(store))
	}

	jwksHandler, err := jwks.Handler(keys)
	if err != nil {
		return nil, err
	}

	s := &Service{
		Store:     store,
		Attempts:  attempts,
		Keys:      keys,
		Tokens:    token.NewIssuer(cfg.Token, store, keys, token.WithLogger(logger), token.WithClock(o.now)),
		Verifier:  verifier,
		APIKeys:   apikey.NewIssuer(store, keys.Default(), apikey.WithLogger(logger), apikey.WithClock(o.now)),
		Resolver:  auth.NewResolver(store, keys.Default(), resolverOpts...),
		Login:     login.NewMachine(attempts, providers, cfg.Login, login.WithLogger(logger), login.WithClock(o.now), login.WithHTTPClient(o.httpClient)),
		Registrar: provision.NewRegistrar(store, provision.WithLogger(logger), provision.WithDefaultPermissions(defaults), provision.WithMappers(mappers...)),
		JWKS:      jwksHandler,
		logger:    logger,
	}
	if cfg.PublishJWKS {
		if backends.Uploader == nil {
			return nil, sserr.New(sserr.CodeInternalConfiguration, "authn: publishing keys requires object storage")
		}
		s.Publisher = jwks.NewPublisher(backends.Uploader, jwks.WithLogger(logger))
	}

	builder := lifecycle.NewBuilder(ServiceName, o.version).
		WithLogger(logger).
		WithOnStart(s.start).
		WithOnStop(func(context.Context) error {
			if backends.Close == nil {
				return nil
			}
			return backends.Close()
		})
	for _, c := range backends.Components {
		builder.WithComponent(c.Name, c.Check)
	}
	if s.lifecycle, err = builder.Build(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) start(ctx context.Context) error {
	if err := s.Store.Migrate(ctx); err != nil {
		return err
	}
	if s.Publisher != nil {
		return s.PublishKeys(ctx)
	}
	return nil
}

// Start migrates the schema and publishes the key set when configured.
func (s *Service) Start(ctx context.Context) error { return s.lifecycle.Start(ctx) }

// Stop closes the backends. Stopping twice is a no-op.
func (s *Service) Stop(ctx context.Context) error { return s.lifecycle.Stop(ctx) }

// Health reports whether the service is running and its backends answer.
func (s *Service) Health(ctx context.Context) error { return s.lifecycle.Health(ctx) }

// Info returns the lifecycle snapshot.
func (s *Service) Info() lifecycle.Info { return s.lifecycle.Info() }

// PublishKeys uploads the public key set.
func (s *Service) PublishKeys(ctx context.Context) error {
	if s.Publisher == nil {
		return sserr.New(sserr.CodeInternalConfiguration, "authn: key publishing is not configured")
	}
	return s.Publisher.Publish(ctx, s.Keys)
}

// ProviderInfos describes the configured login providers for clients.
func (s *Service) ProviderInfos(publicURL string) []login.Info {
	return s.Login.Providers().Infos(publicURL)
}

// CompleteLogin redeems a local code and issues an access token for the
// identity behind it. The code is consumed before the provider is
// contacted, so a failed provider round trip still burns it.
//
// An empty requested set grants the identity's full ceiling.
func (s *Service) CompleteLogin(ctx context.Context, exchange login.CodeExchange, requested permissions.Set, expiresAt *time.Time) (*token.Issued, *models.Identity, error) {
	attempt, err := s.Login.Complete(ctx, exchange)
	if err != nil {
		return nil, nil, err
	}

	ext, err := s.Login.ExternalIdentity(ctx, attempt)
	if err != nil {
		s.logger.WarnContext(ctx, "provider identity lookup failed",
			"attempt_id", attempt.ID.String(),
			"provider", attempt.Provider,
			"error", err,
		)
		return nil, nil, err
	}

	identity, err := s.Registrar.Register(ctx, ext)
	if err != nil {
		return nil, nil, err
	}

	if requested.Len() == 0 {
		requested = identity.Permissions
	}
	issued, err := s.Tokens.Issue(ctx, identity, requested, expiresAt)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "login completed",
		"identity_id", identity.ID.String(),
		"provider", ext.Provider,
		"jti", issued.Claims.ID,
	)
	return issued, identity, nil
}

// Package postgres persists identities, API keys, issued access tokens and
// provider links in PostgreSQL.
//
// Permission sets are stored as text[] in their canonical text form and
// parsed on read; a stored permission that no longer parses is an
// InvariantViolation rather than a silent drop. Nothing is hard-deleted.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authn/pkg/store/postgres"

//go:embed schema.sql
var schema string

// DB is the subset of the postgres client the store needs.
type DB interface {
	querier
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

var _ DB = (*pgclient.Client)(nil)

// querier runs statements on the pool or inside one transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements the identity, key, token and provider-link stores.
// It is safe for concurrent use.
type Store struct {
	db     querier
	pool   DB
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for expiry filtering and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store backed by db.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		pool:   db,
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.Migrate")
	defer span.End()

	_, err := s.db.Exec(ctx, schema)
	finishSpan(span, err)
	return err
}

// inTx runs fn with a copy of the store whose statements all run in one
// transaction, committed when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		bound := *s
		bound.db = txQuerier{tx: tx}
		return fn(&bound)
	})
}

// txQuerier classifies statement errors inside a transaction the same way
// the client does on the pool.
type txQuerier struct {
	tx pgx.Tx
}

func (q txQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := q.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, pgclient.WrapScanError(err, "store: query in transaction failed")
	}
	return rows, nil
}

func (q txQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.tx.QueryRow(ctx, sql, args...)
}

func (q txQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := q.tx.Exec(ctx, sql, args...)
	if err != nil {
		return tag, pgclient.WrapScanError(err, "store: exec in transaction failed")
	}
	return tag, nil
}

func (s *Store) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+op)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// timestamp returns the store clock truncated to the microsecond precision
// PostgreSQL keeps.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func parsePermissions(column string, raw []string) (permissions.Set, error) {
	set, err := permissions.ParseSet(raw)
	if err != nil {
		return permissions.Set{}, sserr.InvariantViolation("store: stored " + column + " do not parse").
			WithDetail("cause", err.Error())
	}
	return set, nil
}

func decodeAssignments(raw []byte) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string][]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, sserr.InvariantViolation("store: stored assignments are not valid json").
			WithDetail("cause", err.Error())
	}
	return m, nil
}

func encodeAssignments(m map[string][]string) ([]byte, error) {
	if m == nil {
		m = map[string][]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "store: encode assignments")
	}
	return b, nil
}

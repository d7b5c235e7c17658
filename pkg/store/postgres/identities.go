package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
)

const identityColumns = `id, permissions, assignments, created_at, updated_at, deleted_at`

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*models.Identity, error) {
	var (
		i           models.Identity
		perms       []string
		assignments []byte
	)
	if err := row.Scan(&i.ID, &perms, &assignments, &i.CreatedAt, &i.UpdatedAt, &i.DeletedAt); err != nil {
		return nil, err
	}
	var err error
	if i.Permissions, err = parsePermissions("identity permissions", perms); err != nil {
		return nil, err
	}
	if i.Assignments, err = decodeAssignments(assignments); err != nil {
		return nil, err
	}
	return &i, nil
}

// GetIdentity returns the identity with id. Soft-deleted identities are
// only returned when includeDeleted is set; otherwise, as when no row
// exists, the error carries [sserr.CodeNotFoundIdentity].
func (s *Store) GetIdentity(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Identity, error) {
	ctx, span := s.start(ctx, "GetIdentity")
	defer span.End()

	sql := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}

	identity, err := scanIdentity(s.db.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		err = sserr.New(sserr.CodeNotFoundIdentity, "store: identity not found")
	}
	err = pgclient.WrapScanError(err, "store: get identity failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// UpsertIdentity creates the identity or replaces its permissions and
// assignments. A soft-deleted identity stays deleted.
func (s *Store) UpsertIdentity(ctx context.Context, n models.NewIdentity) (*models.Identity, error) {
	ctx, span := s.start(ctx, "UpsertIdentity")
	defer span.End()

	assignments, err := encodeAssignments(n.Assignments)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	now := s.timestamp()

	identity, err := scanIdentity(s.db.QueryRow(ctx, `
		INSERT INTO identities (id, permissions, assignments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			permissions = EXCLUDED.permissions,
			assignments = EXCLUDED.assignments,
			updated_at  = EXCLUDED.updated_at
		RETURNING `+identityColumns,
		n.ID, n.Permissions.Strings(), assignments, now))
	err = pgclient.WrapScanError(err, "store: upsert identity failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// DeleteIdentity tombstones the identity. Deleting twice keeps the first
// deletion time.
func (s *Store) DeleteIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ctx, span := s.start(ctx, "DeleteIdentity")
	defer span.End()

	identity, err := scanIdentity(s.db.QueryRow(ctx, `
		UPDATE identities
		SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		WHERE id = $1
		RETURNING `+identityColumns,
		id, s.timestamp()))
	if errors.Is(err, pgx.ErrNoRows) {
		err = sserr.New(sserr.CodeNotFoundIdentity, "store: identity not found")
	}
	err = pgclient.WrapScanError(err, "store: delete identity failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

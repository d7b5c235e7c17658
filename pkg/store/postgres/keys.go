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

const keyColumns = `id, identity_id, key_signature, permissions, expires_at, created_at, updated_at, deleted_at`

func scanKey(row scanner) (*models.APIKey, error) {
	var (
		k     models.APIKey
		perms []string
	)
	if err := row.Scan(&k.ID, &k.IdentityID, &k.Signature, &perms, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt, &k.DeletedAt); err != nil {
		return nil, err
	}
	var err error
	if k.Permissions, err = parsePermissions("key permissions", perms); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) queryKeys(ctx context.Context, sql string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, pgclient.WrapScanError(err, "store: scan api key failed")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, pgclient.WrapScanError(err, "store: iterate api keys failed")
	}
	return keys, nil
}

// FindKeysBySignature returns the keys whose stored signature equals
// signature. excludeExpired drops keys with expires_at at or before the
// store clock; excludeDeleted drops tombstoned keys. More than one match
// is left for the caller to treat as an invariant violation.
func (s *Store) FindKeysBySignature(ctx context.Context, signature string, excludeExpired, excludeDeleted bool) ([]*models.APIKey, error) {
	ctx, span := s.start(ctx, "FindKeysBySignature")
	defer span.End()

	sql := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_signature = $1`
	args := []any{signature}
	if excludeExpired {
		sql += ` AND expires_at > $2`
		args = append(args, s.timestamp())
	}
	if excludeDeleted {
		sql += ` AND deleted_at IS NULL`
	}

	keys, err := s.queryKeys(ctx, sql, args...)
	finishSpan(span, err)
	return keys, err
}

// ListKeys returns the live keys of an identity, newest first.
func (s *Store) ListKeys(ctx context.Context, identityID uuid.UUID) ([]*models.APIKey, error) {
	ctx, span := s.start(ctx, "ListKeys")
	defer span.End()

	keys, err := s.queryKeys(ctx, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE identity_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, identityID)
	finishSpan(span, err)
	return keys, err
}

// UpsertKey inserts a key, or updates the permissions and expiry of an
// existing one. The signature of an existing key is never changed.
func (s *Store) UpsertKey(ctx context.Context, n models.NewAPIKey) (*models.APIKey, error) {
	ctx, span := s.start(ctx, "UpsertKey")
	defer span.End()

	key, err := scanKey(s.db.QueryRow(ctx, `
		INSERT INTO api_keys (id, identity_id, key_signature, permissions, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			permissions = EXCLUDED.permissions,
			expires_at  = EXCLUDED.expires_at,
			updated_at  = EXCLUDED.updated_at
		RETURNING `+keyColumns,
		n.ID, n.IdentityID, n.Signature, n.Permissions.Strings(), n.ExpiresAt, s.timestamp()))
	err = pgclient.WrapScanError(err, "store: upsert api key failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// DeleteKey tombstones a key.
func (s *Store) DeleteKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	ctx, span := s.start(ctx, "DeleteKey")
	defer span.End()

	key, err := scanKey(s.db.QueryRow(ctx, `
		UPDATE api_keys
		SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		WHERE id = $1
		RETURNING `+keyColumns,
		id, s.timestamp()))
	if errors.Is(err, pgx.ErrNoRows) {
		err = sserr.New(sserr.CodeNotFoundResource, "store: api key not found")
	}
	err = pgclient.WrapScanError(err, "store: delete api key failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return key, nil
}

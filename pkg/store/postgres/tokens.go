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

const tokenColumns = `id, identity_id, expires_at, revoked_at, created_at, updated_at`

func scanToken(row scanner) (*models.AccessToken, error) {
	var t models.AccessToken
	if err := row.Scan(&t.ID, &t.IdentityID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func notFoundToken(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sserr.New(sserr.CodeNotFoundResource, "store: access token not found")
	}
	return err
}

// CreateAccessToken records an issued token.
func (s *Store) CreateAccessToken(ctx context.Context, n models.NewAccessToken) (*models.AccessToken, error) {
	ctx, span := s.start(ctx, "CreateAccessToken")
	defer span.End()

	token, err := scanToken(s.db.QueryRow(ctx, `
		INSERT INTO access_tokens (id, identity_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+tokenColumns,
		n.ID, n.IdentityID, n.ExpiresAt, s.timestamp()))
	err = pgclient.WrapScanError(err, "store: create access token failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GetAccessToken returns a token record by jti.
func (s *Store) GetAccessToken(ctx context.Context, id uuid.UUID) (*models.AccessToken, error) {
	ctx, span := s.start(ctx, "GetAccessToken")
	defer span.End()

	token, err := scanToken(s.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE id = $1`, id))
	err = pgclient.WrapScanError(notFoundToken(err), "store: get access token failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// RevokeAccessToken marks a token revoked. Revoking twice keeps the first
// revocation time.
func (s *Store) RevokeAccessToken(ctx context.Context, id uuid.UUID) (*models.AccessToken, error) {
	ctx, span := s.start(ctx, "RevokeAccessToken")
	defer span.End()

	token, err := scanToken(s.db.QueryRow(ctx, `
		UPDATE access_tokens
		SET revoked_at = COALESCE(revoked_at, $2), updated_at = $2
		WHERE id = $1
		RETURNING `+tokenColumns,
		id, s.timestamp()))
	err = pgclient.WrapScanError(notFoundToken(err), "store: revoke access token failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ListAccessTokens returns the token records of an identity, newest first.
func (s *Store) ListAccessTokens(ctx context.Context, identityID uuid.UUID) ([]*models.AccessToken, error) {
	ctx, span := s.start(ctx, "ListAccessTokens")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT `+tokenColumns+` FROM access_tokens
		WHERE identity_id = $1
		ORDER BY created_at DESC`, identityID)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.AccessToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			err = pgclient.WrapScanError(err, "store: scan access token failed")
			finishSpan(span, err)
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		err = pgclient.WrapScanError(err, "store: iterate access tokens failed")
		finishSpan(span, err)
		return nil, err
	}
	return tokens, nil
}

package postgres

import (
	"context"

	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-authn/pkg/models"
)

const linkColumns = `id, identity_id, provider, provider_id, verified_emails, created_at, updated_at, deleted_at`

func scanLink(row scanner) (*models.ProviderLink, error) {
	var l models.ProviderLink
	if err := row.Scan(&l.ID, &l.IdentityID, &l.Provider, &l.ProviderID, &l.Emails, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListProviderLinks returns the live links for an external account.
func (s *Store) ListProviderLinks(ctx context.Context, provider, providerID string) ([]*models.ProviderLink, error) {
	ctx, span := s.start(ctx, "ListProviderLinks")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT `+linkColumns+` FROM provider_links
		WHERE provider = $1 AND provider_id = $2 AND deleted_at IS NULL
		ORDER BY created_at`, provider, providerID)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	defer rows.Close()

	var links []*models.ProviderLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			err = pgclient.WrapScanError(err, "store: scan provider link failed")
			finishSpan(span, err)
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		err = pgclient.WrapScanError(err, "store: iterate provider links failed")
		finishSpan(span, err)
		return nil, err
	}
	return links, nil
}

// UpsertProviderLink inserts a link or refreshes its verified emails. A
// second live link for the same account fails with
// [sserr.CodeConflictAlreadyExists].
func (s *Store) UpsertProviderLink(ctx context.Context, n models.NewProviderLink) (*models.ProviderLink, error) {
	ctx, span := s.start(ctx, "UpsertProviderLink")
	defer span.End()

	emails := n.Emails
	if emails == nil {
		emails = []string{}
	}
	link, err := scanLink(s.db.QueryRow(ctx, `
		INSERT INTO provider_links (id, identity_id, provider, provider_id, verified_emails, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			verified_emails = EXCLUDED.verified_emails,
			updated_at      = EXCLUDED.updated_at
		RETURNING `+linkColumns,
		n.ID, n.IdentityID, n.Provider, n.ProviderID, emails, s.timestamp()))
	err = pgclient.WrapScanError(err, "store: upsert provider link failed")
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// CreateLinkedIdentity inserts an identity and the first link to it in one
// transaction. When the account already has a live link the insert fails
// with [sserr.CodeConflictAlreadyExists] and neither row is written.
func (s *Store) CreateLinkedIdentity(ctx context.Context, n models.NewIdentity, l models.NewProviderLink) (*models.Identity, error) {
	ctx, span := s.start(ctx, "CreateLinkedIdentity")
	defer span.End()

	var identity *models.Identity
	err := s.inTx(ctx, func(tx *Store) error {
		var err error
		identity, err = tx.UpsertIdentity(ctx, n)
		if err != nil {
			return err
		}
		l.IdentityID = identity.ID
		_, err = tx.UpsertProviderLink(ctx, l)
		return err
	})
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Package models defines the records the authentication core reads and
// writes through its stores: identities, API keys, issued access tokens,
// external provider links and login attempts.
//
// Identities and credentials are never hard-deleted. A non-nil DeletedAt
// tombstones the record and every authentication path treats it as absent.
package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// Identity is a principal with a permission ceiling.
type Identity struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Permissions is the most the identity may ever be granted. Credentials
	// are intersected with it on every request.
	Permissions permissions.Set `json:"permissions" db:"permissions"`

	// Assignments maps a resource kind ("documents", "groups") to the ids
	// the identity is assigned to. It drives expansion of assigned
	// permissions.
	Assignments map[string][]string `json:"assignments,omitempty" db:"assignments"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// SubjectID implements permissions.Subject.
func (i Identity) SubjectID() string { return i.ID.String() }

// AssignedIDs implements permissions.Subject.
func (i Identity) AssignedIDs(resource string) []string {
	return slices.Clone(i.Assignments[resource])
}

// Deleted reports whether the identity is tombstoned.
func (i Identity) Deleted() bool { return i.DeletedAt != nil }

// NewIdentity is the write model for creating or updating an identity.
type NewIdentity struct {
	ID          uuid.UUID
	Permissions permissions.Set
	Assignments map[string][]string
}

// APIKey is a stored API key. Signature is both the secret verifier and
// the lookup index; the plaintext secret is never stored. Records are
// only ever soft-deleted and never change their signature.
type APIKey struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	IdentityID  uuid.UUID       `json:"identity_id" db:"identity_id"`
	Signature   string          `json:"-" db:"key_signature"`
	Permissions permissions.Set `json:"permissions" db:"permissions"`
	ExpiresAt   time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Active reports whether the key is neither expired nor deleted at now.
func (k APIKey) Active(now time.Time) bool {
	return k.DeletedAt == nil && now.Before(k.ExpiresAt)
}

// NewAPIKey is the write model for issuing a key. Permissions must already
// be narrowed to the owner's ceiling.
type NewAPIKey struct {
	ID          uuid.UUID
	IdentityID  uuid.UUID
	Signature   string
	Permissions permissions.Set
	ExpiresAt   time.Time
}

// AccessToken records an issued token so it can be revoked independently
// of its signature. ID is the token's jti.
type AccessToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	IdentityID uuid.UUID  `json:"identity_id" db:"identity_id"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Revoked reports whether the token has been revoked.
func (t AccessToken) Revoked() bool { return t.RevokedAt != nil }

// NewAccessToken is the write model for an issued token.
type NewAccessToken struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	ExpiresAt  time.Time
}

// ProviderLink binds an identity to an account at an external provider.
// At most one live link may exist per (Provider, ProviderID).
type ProviderLink struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	IdentityID uuid.UUID  `json:"identity_id" db:"identity_id"`
	Provider   string     `json:"provider" db:"provider"`
	ProviderID string     `json:"provider_id" db:"provider_id"`
	Emails     []string   `json:"emails" db:"verified_emails"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// NewProviderLink is the write model for a provider link.
type NewProviderLink struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Provider   string
	ProviderID string
	Emails     []string
}

// Package auth turns presented credentials into a [Caller] and carries it
// through HTTP and gRPC requests.
//
// Two credential forms are accepted on the Authorization header as bearer
// values: signed tokens (three dot separated segments) and API keys
// ("{identity-id}.{secret}"). Both resolve the same way:
//
//  1. The credential yields an identity id and a permission set.
//  2. The identity is loaded, excluding soft-deleted identities. A missing
//     identity fails authentication even when the credential is valid.
//  3. The effective permissions are credential ∩ ceiling, then expanded
//     against the identity.
//
// Every authentication failure surfaces as the same uninformative
// FailedToAuthenticate error. The reason is logged, never returned.
package auth

import (
	"github.com/google/uuid"

	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authn/pkg/token"
)

// CredentialKind names the credential a Caller was resolved from.
type CredentialKind string

const (
	CredentialAPIKey CredentialKind = "api_key"
	CredentialToken  CredentialKind = "token"
)

// String returns the kind as a string.
func (k CredentialKind) String() string { return string(k) }

// Credential is exactly one presented credential: an API key string or
// claims whose signature has already been verified.
type Credential struct {
	APIKey string
	Claims *token.Claims
}

// Kind reports which form c holds. Claims win if both are set.
func (c Credential) Kind() CredentialKind {
	if c.Claims != nil {
		return CredentialToken
	}
	return CredentialAPIKey
}

// Caller is the resolved actor for one request. Permissions are already
// narrowed to the identity's ceiling and expanded, so they contain no
// self or assigned variants the identity could resolve.
type Caller struct {
	IdentityID  uuid.UUID
	Permissions permissions.Set
	Credential  CredentialKind
}

// Can reports whether the caller holds a permission covering p.
func (c *Caller) Can(p permissions.Permission) bool {
	if c == nil {
		return false
	}
	return c.Permissions.Covers(p)
}

// CanAny reports whether the caller is covered for at least one of perms.
func (c *Caller) CanAny(perms ...permissions.Permission) bool {
	if c == nil {
		return false
	}
	return c.Permissions.CoversAny(perms...)
}

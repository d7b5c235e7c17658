// Package token issues and validates short-lived signed claims.
//
// Claims carry the identity as audience, the granted permissions, an expiry,
// a not-before time and a unique token id. Every issued token is recorded so
// it can be revoked independently of its signature.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// Claims is the token payload. The registered aud, exp, nbf, iat, iss and
// jti claims come from jwt.RegisteredClaims; prm holds the permissions.
type Claims struct {
	jwt.RegisteredClaims
	Permissions permissions.Set `json:"prm"`
}

var _ jwt.Claims = (*Claims)(nil)

// IdentityID parses the audience as an identity id.
func (c *Claims) IdentityID() (uuid.UUID, error) {
	if len(c.Audience) != 1 {
		return uuid.Nil, sserr.FailedToParse("token: claims must name exactly one audience", nil)
	}
	id, err := uuid.Parse(c.Audience[0])
	if err != nil {
		return uuid.Nil, sserr.FailedToParse("token: audience is not a valid id", err)
	}
	return id, nil
}

// TokenID parses jti.
func (c *Claims) TokenID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, sserr.FailedToParse("token: jti is not a valid id", err)
	}
	return id, nil
}

// Validate checks the validity window at now: now >= nbf and now < exp.
// Expired claims are AUTH_002, claims not yet valid or without an expiry
// are AUTH_003. Signature validity is the caller's concern.
func Validate(c *Claims, now time.Time) error {
	if c.ExpiresAt == nil {
		return sserr.New(sserr.CodeAuthenticationInvalid, "token: claims have no expiry")
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return sserr.New(sserr.CodeAuthenticationInvalid, "token: claims are not valid yet")
	}
	if !now.Before(c.ExpiresAt.Time) {
		return sserr.New(sserr.CodeAuthenticationExpired, "token: claims have expired")
	}
	return nil
}

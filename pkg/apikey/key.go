// Package apikey generates, signs and parses bearer API keys.
//
// A key is presented as "{identity-id}.{hex-secret}". The server stores only
// hex(sign(presented string)), which doubles as the lookup index: verifying
// a key is re-signing it and looking the signature up by equality. The
// secret itself is never stored and is shown to the user exactly once.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

const (
	// DefaultSecretLength is the number of random bytes in a new key.
	DefaultSecretLength = 32

	// MinSecretLength is the smallest secret the Issuer accepts.
	MinSecretLength = 8

	separator = "."
)

// RawKey is an unsigned key. It exists only while issuing or verifying a
// key and is never persisted.
type RawKey struct {
	IdentityID uuid.UUID
	// Secret is the hex encoded random material, taken verbatim when
	// parsed.
	Secret credentials.Secret
}

// Generate returns a key for identityID with secretLen random bytes.
func Generate(identityID uuid.UUID, secretLen int) (RawKey, error) {
	if secretLen < 1 {
		return RawKey{}, sserr.Newf(sserr.CodeValidationRange,
			"apikey: secret length must be positive, got %d", secretLen)
	}
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return RawKey{}, sserr.Wrap(err, sserr.CodeInternal, "apikey: entropy source failed")
	}
	return RawKey{IdentityID: identityID, Secret: credentials.Secret(hex.EncodeToString(buf))}, nil
}

// Format returns the presentable form "{id}.{secret}".
func Format(identityID uuid.UUID, secret string) string {
	return identityID.String() + separator + secret
}

// Presentable returns the key as shown to the user.
func (k RawKey) Presentable() credentials.Secret {
	return credentials.Secret(Format(k.IdentityID, k.Secret.Value()))
}

// Parse splits a presented key on its first dot. The left side must be a
// UUID; the right side is the secret, taken verbatim. Failures are
// FailedToParse.
func Parse(presented string) (RawKey, error) {
	left, right, found := strings.Cut(presented, separator)
	if !found {
		return RawKey{}, sserr.FailedToParse("apikey: key has no separator", nil)
	}
	id, err := uuid.Parse(left)
	if err != nil {
		return RawKey{}, sserr.FailedToParse("apikey: key owner is not a valid id", err)
	}
	return RawKey{IdentityID: id, Secret: credentials.Secret(right)}, nil
}

// SignedKey pairs the presentable key with its signature. Key goes to the
// user once; Signature is what gets stored.
type SignedKey struct {
	Key       credentials.Secret
	Signature string
}

// Sign signs the UTF-8 bytes of the presentable key and hex encodes the
// result. Signer errors surface as SigningFailure.
func Sign(raw RawKey, signer credentials.Signer) (SignedKey, error) {
	presentable := raw.Presentable()
	sig, err := signer.Sign([]byte(presentable.Value()))
	if err != nil {
		if sserr.IsSigningFailure(err) {
			return SignedKey{}, err
		}
		return SignedKey{}, sserr.SigningFailure(err, "apikey: signing failed")
	}
	return SignedKey{Key: presentable, Signature: hex.EncodeToString(sig)}, nil
}

// Signature recomputes the stored signature for a presented key string,
// the first step of verification.
func Signature(presented string, signer credentials.Signer) (RawKey, string, error) {
	raw, err := Parse(presented)
	if err != nil {
		return RawKey{}, "", err
	}
	signed, err := Sign(raw, signer)
	if err != nil {
		return RawKey{}, "", err
	}
	return raw, signed.Signature, nil
}

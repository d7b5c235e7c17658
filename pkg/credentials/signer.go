// Package credentials provides the signing and encryption capabilities the
// rest of the module is built on. Signers and encryptors are constructed
// once from configured key material and are immutable and safe for
// concurrent use afterwards.
package credentials

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// MinHMACKeyLen is the shortest accepted HS256 key in bytes.
const MinHMACKeyLen = 32

// Signer produces deterministic signatures: the same input under the same
// key always yields the same bytes. API key blind indexing depends on it.
type Signer interface {
	// Sign signs data.
	Sign(data []byte) ([]byte, error)
	// Verify checks sig over data.
	Verify(data, sig []byte) error
	// Algorithm is the JWS algorithm name ("HS256", "RS256").
	Algorithm() string
	// KeyID identifies the key in token headers and key sets.
	KeyID() string
	// VerificationKey is the key accepted by the jwt signing method's
	// Verify for this algorithm.
	VerificationKey() any
	// PublicJWK describes the public verification key. Symmetric
	// signers have none and return false.
	PublicJWK() (JWK, bool)
}

// JWK is a public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// ---------------------------------------------------------------------------
// HS256
// ---------------------------------------------------------------------------

// HMACSigner signs with HMAC-SHA256.
type HMACSigner struct {
	kid string
	key []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner returns an HS256 signer. An empty kid is derived from the
// key. Keys shorter than MinHMACKeyLen fail with SigningFailure.
func NewHMACSigner(kid string, key Secret) (*HMACSigner, error) {
	raw := []byte(key.Value())
	if len(raw) < MinHMACKeyLen {
		return nil, sserr.SigningFailure(nil, "credentials: HMAC key must be at least 32 bytes")
	}
	if kid == "" {
		sum := sha256.Sum256(append([]byte("kid:"), raw...))
		kid = "hs256-" + hex.EncodeToString(sum[:8])
	}
	return &HMACSigner{kid: kid, key: raw}, nil
}

func (s *HMACSigner) Sign(data []byte) ([]byte, error) {
	sig, err := jwt.SigningMethodHS256.Sign(string(data), s.key)
	if err != nil {
		return nil, sserr.SigningFailure(err, "credentials: HMAC signing failed")
	}
	return sig, nil
}

func (s *HMACSigner) Verify(data, sig []byte) error {
	if err := jwt.SigningMethodHS256.Verify(string(data), sig, s.key); err != nil {
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "credentials: signature mismatch")
	}
	return nil
}

func (s *HMACSigner) Algorithm() string      { return jwt.SigningMethodHS256.Alg() }
func (s *HMACSigner) KeyID() string          { return s.kid }
func (s *HMACSigner) VerificationKey() any   { return s.key }
func (s *HMACSigner) PublicJWK() (JWK, bool) { return JWK{}, false }

// ---------------------------------------------------------------------------
// RS256
// ---------------------------------------------------------------------------

// RSASigner signs with RSASSA-PKCS1-v1_5 and SHA-256, which is
// deterministic.
type RSASigner struct {
	kid  string
	priv *rsa.PrivateKey
}

var _ Signer = (*RSASigner)(nil)

// NewRSASigner parses a PEM encoded private key. An empty kid becomes the
// RFC 7638 thumbprint of the public key.
func NewRSASigner(kid string, pemKey Secret) (*RSASigner, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey.Value()))
	if err != nil {
		return nil, sserr.SigningFailure(err, "credentials: malformed RSA private key")
	}
	if priv.N.BitLen() < 2048 {
		return nil, sserr.SigningFailure(nil, "credentials: RSA key must be at least 2048 bits")
	}
	s := &RSASigner{kid: kid, priv: priv}
	if s.kid == "" {
		s.kid = thumbprint(&priv.PublicKey)
	}
	return s, nil
}

func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	sig, err := jwt.SigningMethodRS256.Sign(string(data), s.priv)
	if err != nil {
		return nil, sserr.SigningFailure(err, "credentials: RSA signing failed")
	}
	return sig, nil
}

func (s *RSASigner) Verify(data, sig []byte) error {
	if err := jwt.SigningMethodRS256.Verify(string(data), sig, &s.priv.PublicKey); err != nil {
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "credentials: signature mismatch")
	}
	return nil
}

func (s *RSASigner) Algorithm() string    { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) KeyID() string        { return s.kid }
func (s *RSASigner) VerificationKey() any { return &s.priv.PublicKey }

func (s *RSASigner) PublicJWK() (JWK, bool) {
	n, e := rsaComponents(&s.priv.PublicKey)
	return JWK{Kty: "RSA", Kid: s.kid, Alg: s.Algorithm(), Use: "sig", N: n, E: e}, true
}

func rsaComponents(pub *rsa.PublicKey) (n, e string) {
	n = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	return n, e
}

func thumbprint(pub *rsa.PublicKey) string {
	n, e := rsaComponents(pub)
	// Members in lexicographic order, no whitespace.
	sum := sha256.Sum256([]byte(`{"e":"` + e + `","kty":"RSA","n":"` + n + `"}`))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

package credentials

import (
	"slices"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Key algorithms accepted in KeyConfig.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

// KeyConfig is one configured signing key. Material is the raw HMAC key
// or a PEM encoded RSA private key.
type KeyConfig struct {
	ID        string `yaml:"id" json:"id"`
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Material  Secret `yaml:"material" json:"material"`
}

// NewSigner builds the signer described by cfg.
func NewSigner(cfg KeyConfig) (Signer, error) {
	switch strings.ToUpper(cfg.Algorithm) {
	case AlgorithmHS256:
		return NewHMACSigner(cfg.ID, cfg.Material)
	case AlgorithmRS256, "":
		return NewRSASigner(cfg.ID, cfg.Material)
	default:
		return nil, sserr.SigningFailure(nil, "credentials: unsupported signing algorithm "+cfg.Algorithm)
	}
}

// Keyring is the ordered list of configured signers. The first one is the
// default: it signs new tokens and computes API key signatures. Older keys
// stay available for token verification by kid.
type Keyring struct {
	signers []Signer
	byKID   map[string]Signer
}

// NewKeyring returns a keyring over signers. It needs at least one signer
// and unique key ids.
func NewKeyring(signers ...Signer) (*Keyring, error) {
	if len(signers) == 0 {
		return nil, sserr.SigningFailure(nil, "credentials: at least one signing key is required")
	}
	k := &Keyring{signers: signers, byKID: make(map[string]Signer, len(signers))}
	for _, s := range signers {
		if _, dup := k.byKID[s.KeyID()]; dup {
			return nil, sserr.SigningFailure(nil, "credentials: duplicate key id "+s.KeyID())
		}
		k.byKID[s.KeyID()] = s
	}
	return k, nil
}

// LoadKeyring builds signers from configuration, in order.
func LoadKeyring(keys []KeyConfig) (*Keyring, error) {
	signers := make([]Signer, 0, len(keys))
	for _, cfg := range keys {
		s, err := NewSigner(cfg)
		if err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	return NewKeyring(signers...)
}

// Default returns the first signer.
func (k *Keyring) Default() Signer { return k.signers[0] }

// Lookup finds a signer by key id.
func (k *Keyring) Lookup(kid string) (Signer, bool) {
	s, ok := k.byKID[kid]
	return s, ok
}

// Algorithms lists the distinct algorithms of the ring.
func (k *Keyring) Algorithms() []string {
	var out []string
	for _, s := range k.signers {
		if alg := s.Algorithm(); !slices.Contains(out, alg) {
			out = append(out, alg)
		}
	}
	return out
}

// JWKSet is a published verification-key set.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns the public keys of every asymmetric signer.
func (k *Keyring) JWKS() JWKSet {
	set := JWKSet{Keys: []JWK{}}
	for _, s := range k.signers {
		if jwk, ok := s.PublicJWK(); ok {
			set.Keys = append(set.Keys, jwk)
		}
	}
	return set
}

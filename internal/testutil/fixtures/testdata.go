// Package fixtures holds the shared values the authn test suites build
// their scenarios from.
package fixtures

// Login scenario: client c1 signs in through google as provider account
// prov-987.
const (
	ClientID          = "c1"
	RedirectURI       = "https://x/cb"
	ClientState       = "abc"
	Provider          = "google"
	ProviderAccountID = "prov-987"
	ProviderEmail     = "dev@example.com"
	PublicURL         = "https://authn.example.com"
)

// Token issuance.
const (
	Issuer = "https://authn.example.com"

	// HMACKey is 32 bytes, the minimum the HMAC signer accepts.
	HMACKey = "0123456789abcdef0123456789abcdef"

	// EncryptionKey seals provider client secrets in tests.
	EncryptionKey = "test-encryption-key-material-32b"
)

// Storage.
const (
	RedisKeyPrefix = "authn-test:"
	Bucket         = "authn-public"
)

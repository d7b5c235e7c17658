package apikey

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

func testSigner(t *testing.T) credentials.Signer {
	t.Helper()
	s, err := credentials.NewHMACSigner("test", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return s
}

type failingSigner struct{ credentials.Signer }

func (failingSigner) Sign([]byte) ([]byte, error) { return nil, errors.New("hsm offline") }

// ===========================================================================
// Generate / Format / Parse
// ===========================================================================

func TestGenerate(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	k, err := Generate(id, 8)
	require.NoError(t, err)
	assert.Equal(t, id, k.IdentityID)
	assert.Len(t, k.Secret.Value(), 16, "hex doubles the byte count")

	_, err = Generate(id, 0)
	assert.Equal(t, sserr.CodeValidationRange, sserr.GetCode(err))
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 8, 16, 32, 64} {
		id := uuid.New()
		k, err := Generate(id, n)
		require.NoError(t, err)

		parsed, err := Parse(Format(id, k.Secret.Value()))
		require.NoError(t, err)
		assert.Equal(t, id, parsed.IdentityID)
		assert.Equal(t, k.Secret.Value(), parsed.Secret.Value())
	}
}

func TestParse_SecretIsVerbatim(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	parsed, err := Parse(id.String() + ".not.hex.at.all")
	require.NoError(t, err)
	assert.Equal(t, "not.hex.at.all", parsed.Secret.Value(), "split happens on the first dot only")
}

func TestParse_Failures(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"",
		"no-separator-here",
		uuid.New().String(),
		"not-a-uuid.abcdef",
		".abcdef",
	} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, sserr.IsFailedToParse(err))
		})
	}
}

// ===========================================================================
// Sign
// ===========================================================================

func TestSign_Deterministic(t *testing.T) {
	t.Parallel()
	signer := testSigner(t)
	k, err := Generate(uuid.New(), 16)
	require.NoError(t, err)

	a, err := Sign(k, signer)
	require.NoError(t, err)
	b, err := Sign(k, signer)
	require.NoError(t, err)

	assert.Equal(t, a.Signature, b.Signature)
	assert.Equal(t, k.Presentable().Value(), a.Key.Value())
	assert.True(t, strings.HasPrefix(a.Key.Value(), k.IdentityID.String()+"."))
	assert.Equal(t, "[REDACTED]", a.Key.String())
}

func TestSign_DistinctKeysSameIdentity(t *testing.T) {
	t.Parallel()
	signer := testSigner(t)
	id := uuid.New()

	k1, err := Generate(id, 8)
	require.NoError(t, err)
	k2, err := Generate(id, 8)
	require.NoError(t, err)

	s1, err := Sign(k1, signer)
	require.NoError(t, err)
	s2, err := Sign(k2, signer)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Signature, s2.Signature)
}

func TestSign_SignerFailure(t *testing.T) {
	t.Parallel()
	k, err := Generate(uuid.New(), 8)
	require.NoError(t, err)

	_, err = Sign(k, failingSigner{})
	require.Error(t, err)
	assert.True(t, sserr.IsSigningFailure(err))
}

func TestSignature_MatchesIssued(t *testing.T) {
	t.Parallel()
	signer := testSigner(t)
	k, err := Generate(uuid.New(), 8)
	require.NoError(t, err)
	issued, err := Sign(k, signer)
	require.NoError(t, err)

	raw, sig, err := Signature(issued.Key.Value(), signer)
	require.NoError(t, err)
	assert.Equal(t, issued.Signature, sig)
	assert.Equal(t, k.IdentityID, raw.IdentityID)

	_, _, err = Signature("garbage", signer)
	assert.True(t, sserr.IsFailedToParse(err))
}

package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authn/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// fakeGoogle serves the token and user info endpoints of a provider.
type fakeGoogle struct {
	wantCode     string
	wantVerifier string
	wantSecret   string
	userInfo     string
	userStatus   int
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != f.wantCode || r.PostForm.Get("code_verifier") != f.wantVerifier ||
			r.PostForm.Get("client_secret") != f.wantSecret {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		_, _ = w.Write([]byte(f.userInfo))
	})
	return mux
}

func fakeGoogleProvider(t *testing.T, baseURL string, encryptor credentials.Encryptor, encryptedSecret string) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(GoogleConfig{
		ClientID:              "authn-client",
		EncryptedClientSecret: encryptedSecret,
		AuthURL:               baseURL + "/auth",
		TokenURL:              baseURL + "/token",
		UserInfoURL:           baseURL + "/userinfo",
		DeviceURL:             baseURL + "/device",
	}, encryptor)
	require.NoError(t, err)
	return p
}

// ===========================================================================
// GoogleProvider
// ===========================================================================

func TestGoogleProvider_Defaults(t *testing.T) {
	t.Parallel()
	p, err := NewGoogleProvider(GoogleConfig{ClientID: "cid"}, nil)
	require.NoError(t, err)

	assert.Equal(t, GoogleName, p.Name())
	assert.Equal(t, []string{"openid", "email"}, p.Scopes())
	assert.Equal(t, GoogleAuthURL, p.AuthURLEndpoint())
	assert.Equal(t, GoogleTokenURL, p.TokenExchangeEndpoint())
	assert.Equal(t, GoogleUserInfoURL, p.UserInfoEndpoint())
	assert.Equal(t, GoogleDeviceURL, p.DeviceCodeEndpoint())
	assert.Equal(t, "application/x-www-form-urlencoded", p.TokenExchangeContentType())

	secret, err := p.ClientSecret()
	require.NoError(t, err)
	assert.Empty(t, secret.Value())
}

func TestNewGoogleProvider_Rejects(t *testing.T) {
	t.Parallel()
	_, err := NewGoogleProvider(GoogleConfig{}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewGoogleProvider(GoogleConfig{ClientID: "cid", EncryptedClientSecret: "sealed"}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestGoogleProvider_ClientSecret(t *testing.T) {
	t.Parallel()
	enc, err := credentials.NewXChaChaEncryptor("provider-secret-material")
	require.NoError(t, err)
	sealed, err := enc.Encrypt("google-client-secret")
	require.NoError(t, err)

	p, err := NewGoogleProvider(GoogleConfig{ClientID: "cid", EncryptedClientSecret: sealed}, enc)
	require.NoError(t, err)
	secret, err := p.ClientSecret()
	require.NoError(t, err)
	assert.Equal(t, "google-client-secret", secret.Value())

	other, err := credentials.NewXChaChaEncryptor("some-other-key-material")
	require.NoError(t, err)
	p, err = NewGoogleProvider(GoogleConfig{ClientID: "cid", EncryptedClientSecret: sealed}, other)
	require.NoError(t, err)
	_, err = p.ClientSecret()
	assert.True(t, sserr.IsEncryptorError(err))
}

func TestGoogleProvider_ExtractUserInfo(t *testing.T) {
	t.Parallel()
	p, err := NewGoogleProvider(GoogleConfig{ClientID: "cid"}, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want ExternalIdentity
		code sserr.Code
	}{
		{
			name: "verified email",
			body: `{"sub":"1234","email":"ada@example.com","email_verified":true}`,
			want: ExternalIdentity{Provider: GoogleName, ID: "1234", VerifiedEmails: []string{"ada@example.com"}},
		},
		{
			name: "unverified email dropped",
			body: `{"sub":"1234","email":"ada@example.com","email_verified":false}`,
			want: ExternalIdentity{Provider: GoogleName, ID: "1234", VerifiedEmails: []string{}},
		},
		{name: "no subject", body: `{"email":"ada@example.com"}`, code: sserr.CodeValidationRequired},
		{name: "not json", body: `<html>`, code: sserr.CodeValidationFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.ExtractUserInfo([]byte(tt.body))
			if tt.code != "" {
				testutil.RequireErrorCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ===========================================================================
// Registry and ProviderInfo
// ===========================================================================

func TestRegistry(t *testing.T) {
	t.Parallel()
	p, err := NewGoogleProvider(GoogleConfig{ClientID: "cid"}, nil)
	require.NoError(t, err)

	_, err = NewRegistry(p, p)
	testutil.RequireErrorCode(t, err, sserr.CodeConflictAlreadyExists)

	r, err := NewRegistry(p)
	require.NoError(t, err)
	got, ok := r.Get(GoogleName)
	require.True(t, ok)
	assert.Same(t, p, got)
	_, ok = r.Get("github")
	assert.False(t, ok)
	assert.Equal(t, []string{GoogleName}, r.Names())

	infos := r.Infos("https://authn.example.com/")
	require.Len(t, infos, 1)
	assert.Equal(t, Info{
		Provider:           GoogleName,
		ClientID:           "cid",
		AuthURLEndpoint:    GoogleAuthURL,
		DeviceCodeEndpoint: GoogleDeviceURL,
		TokenEndpoint:      "https://authn.example.com/login/oauth/google/device/exchange",
		Scopes:             []string{"openid", "email"},
	}, infos[0])
}

// ===========================================================================
// Exchange and FetchUserInfo
// ===========================================================================

func TestMachine_ExternalIdentity(t *testing.T) {
	t.Parallel()
	enc, err := credentials.NewAESGCMEncryptor("provider-secret-material")
	require.NoError(t, err)
	sealed, err := enc.Encrypt("s3cret")
	require.NoError(t, err)

	fake := &fakeGoogle{
		wantCode:   "prov-987",
		wantSecret: "s3cret",
		userInfo:   `{"sub":"g-42","email":"ada@example.com","email_verified":true}`,
	}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	registry, err := NewRegistry(fakeGoogleProvider(t, srv.URL, enc, sealed))
	require.NoError(t, err)
	m := NewMachine(newMemStore(), registry, Config{PublicURL: "https://authn.example.com"}, WithHTTPClient(srv.Client()))

	ctx := context.Background()
	started, err := m.Start(ctx, c1Request())
	require.NoError(t, err)
	fake.wantVerifier = started.ProviderPKCEVerifier
	authed, err := m.Authenticate(ctx, started.ID, "prov-987")
	require.NoError(t, err)

	ext, err := m.ExternalIdentity(ctx, authed)
	require.NoError(t, err)
	assert.Equal(t, ExternalIdentity{Provider: GoogleName, ID: "g-42", VerifiedEmails: []string{"ada@example.com"}}, ext)

	_, err = m.ExternalIdentity(ctx, started)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalInvariant, "created attempts carry no provider code")

	authed.ProviderAuthzCode = "stolen"
	_, err = m.ExternalIdentity(ctx, authed)
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

func TestFetchUserInfo_Errors(t *testing.T) {
	t.Parallel()
	fake := &fakeGoogle{userStatus: http.StatusBadGateway}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	p := fakeGoogleProvider(t, srv.URL, nil, "")

	_, err := FetchUserInfo(context.Background(), p, srv.Client(), "provider-access")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)

	_, err = FetchUserInfo(context.Background(), p, srv.Client(), "wrong-token")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)

	srv.Close()
	_, err = FetchUserInfo(context.Background(), p, srv.Client(), "provider-access")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

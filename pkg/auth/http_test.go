package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// mockAuthenticator returns a fixed caller or error and records the
// bearer it saw.
type mockAuthenticator struct {
	caller *Caller
	err    error
	seen   string
}

func (m *mockAuthenticator) Authenticate(_ context.Context, bearer string) (*Caller, error) {
	m.seen = bearer
	if m.err != nil {
		return nil, m.err
	}
	return m.caller, nil
}

func serve(t *testing.T, handler http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/documents/42", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// HTTPMiddleware
// ---------------------------------------------------------------------------

func TestHTTPMiddleware_Authenticated(t *testing.T) {
	t.Parallel()
	authn := &mockAuthenticator{caller: newTestCaller()}

	var captured *Caller
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := serve(t, HTTPMiddleware(authn)(inner), "Bearer key-id.secret")
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, captured)
	assert.Equal(t, authn.caller.IdentityID, captured.IdentityID)
	assert.Equal(t, "key-id.secret", authn.seen)
}

func TestHTTPMiddleware_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		authorization string
		err           error
		status        int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"basic auth", "Basic dXNlcjpwYXNz", nil, http.StatusUnauthorized},
		{"oversized", "Bearer " + strings.Repeat("a", MaxBearerSize+1), nil, http.StatusUnauthorized},
		{"failed to authenticate", "Bearer x.y", sserr.FailedToAuthenticate(nil), http.StatusUnauthorized},
		{"storage failure", "Bearer x.y", sserr.New(sserr.CodeInternalDatabase, "pq: relation missing"), http.StatusInternalServerError},
		{"storage timeout", "Bearer x.y", sserr.New(sserr.CodeTimeoutDatabase, "slow"), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			authn := &mockAuthenticator{caller: newTestCaller(), err: tt.err}
			inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("inner handler should not be called")
			})

			rr := serve(t, HTTPMiddleware(authn)(inner), tt.authorization)
			assert.Equal(t, tt.status, rr.Code)
			assert.NotContains(t, rr.Body.String(), "relation", "internal detail leaked")
		})
	}
}

// ---------------------------------------------------------------------------
// RequirePermission
// ---------------------------------------------------------------------------

func TestRequirePermission(t *testing.T) {
	t.Parallel()
	authn := &mockAuthenticator{caller: newTestCaller()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	allowed := HTTPMiddleware(authn)(RequirePermission(permissions.On("documents", "write", "42"))(ok))
	assert.Equal(t, http.StatusNoContent, serve(t, allowed, "Bearer a.b").Code)

	denied := HTTPMiddleware(authn)(RequirePermission(permissions.Global("documents", "create"))(ok))
	assert.Equal(t, http.StatusForbidden, serve(t, denied, "Bearer a.b").Code)

	unauthenticated := RequirePermission(permissions.Global("documents", "create"))(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(t, unauthenticated, "").Code)
}

// ---------------------------------------------------------------------------
// ExtractBearerToken
// ---------------------------------------------------------------------------

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer abc", "abc"},
		{"BEARER  abc ", "abc"},
		{"Bearer ", ""},
		{"Token abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractBearerToken(tt.header), tt.header)
	}
}

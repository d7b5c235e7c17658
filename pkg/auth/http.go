package auth

import (
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// HTTPMiddleware authenticates every request with authn and stores the
// resulting [Caller] in the request context.
//
// A missing or malformed Authorization header and any authentication
// failure yield 401. Storage and other internal failures yield their
// mapped status with a generic body; details go to the log only.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/documents/", auth.RequirePermission(permissions.Global("documents", "search"))(search))
//	handler := auth.HTTPMiddleware(resolver)(mux)
func HTTPMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if bearer == "" {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			caller, err := authn.Authenticate(ctx, bearer)
			if err != nil {
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithCaller(ctx, caller)))
		})
	}
}

// RequirePermission rejects requests whose caller is not covered for any
// of perms with 403. It must run behind [HTTPMiddleware]; without a caller
// it answers 401.
func RequirePermission(perms ...permissions.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}
			if !caller.CanAny(perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	if status == http.StatusUnauthorized {
		http.Error(w, sserr.FailedToAuthenticate(nil).Message, status)
		return
	}
	slog.ErrorContext(r.Context(), "auth: caller resolution failed",
		"error", err,
		"code", e.Code.String(),
	)
	http.Error(w, http.StatusText(status), status)
}

package auth

import (
	"strings"
)

// HeaderAuthorization is the header, and gRPC metadata key, carrying the
// bearer credential.
const HeaderAuthorization = "authorization"

// MaxBearerSize bounds the bearer value accepted from a request. Longer
// values are rejected before any parsing or signing work.
const MaxBearerSize = 16 * 1024

// bearerPrefix is the standard "Bearer " prefix for authorization values.
const bearerPrefix = "Bearer "

// ExtractBearerToken extracts the credential from an authorization header
// value. The "Bearer " prefix is matched case-insensitively. It returns ""
// when the prefix is missing, the value is empty or it is oversized.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	prefix := authHeader[:len(bearerPrefix)]
	if !strings.EqualFold(prefix, bearerPrefix) {
		return ""
	}
	value := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if len(value) > MaxBearerSize {
		return ""
	}
	return value
}

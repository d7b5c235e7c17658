package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned and safe to expose to clients.
type Code string

// Categories and the HTTP status they map to:
//
//	VAL_xxx     - 400 Bad Request
//	AUTH_xxx    - 401 Unauthorized
//	AUTHZ_xxx   - 403 Forbidden
//	NF_xxx      - 404 Not Found
//	CONF_xxx    - 409 Conflict
//	INT_xxx     - 500 Internal Server Error
//	UNAVAIL_xxx - 503 Service Unavailable
//	TIMEOUT_xxx - 504 Gateway Timeout
const (
	// CodeValidation is a generic validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired reports a missing required value.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat reports a value with an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange reports a value outside its accepted range.
	CodeValidationRange Code = "VAL_004"

	// CodeTokenExpirationExcess reports a requested token expiry beyond the
	// configured maximum lifetime (ExcessTokenExpiration).
	CodeTokenExpirationExcess Code = "VAL_005"

	// CodeAuthentication is the single externally visible authentication
	// failure (FailedToAuthenticate).
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired reports claims whose expiry has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid reports a malformed credential or an
	// unparseable identifier (FailedToParse).
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthorization is a generic authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied reports a caller lacking a permission.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// CodeNotFound is a generic not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundIdentity reports a missing identity.
	CodeNotFoundIdentity Code = "NF_002"

	// CodeNotFoundResource reports a missing stored record.
	CodeNotFoundResource Code = "NF_003"

	// CodeNotFoundLoginAttempt reports a missing login attempt.
	CodeNotFoundLoginAttempt Code = "NF_004"

	// CodeConflict is a generic conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists reports a duplicate record.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeConflictStateTransition reports an illegal login attempt
	// transition, such as authenticating a failed attempt.
	CodeConflictStateTransition Code = "CONF_004"

	// CodeInternal is a generic internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase reports a storage collaborator failure
	// (StorageFailure).
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration reports invalid or unloadable configuration.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalSigning reports a signer fault (SigningFailure).
	CodeInternalSigning Code = "INT_004"

	// CodeInternalEncryption reports an encryptor fault (EncryptorError).
	CodeInternalEncryption Code = "INT_005"

	// CodeInternalInvariant reports stored data that violates an invariant
	// (InvariantViolation).
	CodeInternalInvariant Code = "INT_006"

	// CodeUnavailable is a generic service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency reports an unreachable dependency.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout is a generic timeout.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase reports a storage call that exceeded its deadline.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_001"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

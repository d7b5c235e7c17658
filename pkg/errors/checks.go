package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns err's code, or "" when err carries none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries exactly code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports a VAL_xxx error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports an AUTH_xxx error, including parse failures.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsAuthorization reports an AUTHZ_xxx error.
func IsAuthorization(err error) bool { return hasCategory(err, "AUTHZ") }

// IsNotFound reports an NF_xxx error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports a CONF_xxx error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports an INT_xxx error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports an UNAVAIL_xxx error.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsFailedToParse reports a malformed credential.
func IsFailedToParse(err error) bool { return HasCode(err, CodeAuthenticationInvalid) }

// IsSigningFailure reports a signer fault.
func IsSigningFailure(err error) bool { return HasCode(err, CodeInternalSigning) }

// IsEncryptorError reports an encryptor fault.
func IsEncryptorError(err error) bool { return HasCode(err, CodeInternalEncryption) }

// IsExcessTokenExpiration reports an expiry beyond policy.
func IsExcessTokenExpiration(err error) bool { return HasCode(err, CodeTokenExpirationExcess) }

// IsInvariantViolation reports a data integrity fault.
func IsInvariantViolation(err error) bool { return HasCode(err, CodeInternalInvariant) }

// IsStorageFailure reports an error propagated from a storage collaborator.
func IsStorageFailure(err error) bool {
	code := GetCode(err)
	return code == CodeInternalDatabase || code == CodeTimeoutDatabase
}

// IsRetryable reports timeout and unavailable errors. Nothing in the core
// retries on its own; this is for transports.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}

// IsClientError reports errors that map to a 4xx status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "AUTH", "AUTHZ", "NF", "CONF":
		return true
	default:
		return false
	}
}

// IsServerError reports errors that map to a 5xx status.
func IsServerError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "INT", "UNAVAIL", "TIMEOUT":
		return true
	default:
		return false
	}
}

package errors

import (
	"errors"
	"fmt"
)

// authenticationMessage is the only message ever attached to an
// authentication failure that crosses the boundary.
const authenticationMessage = "failed to authenticate"

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with err as its cause. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// FailedToAuthenticate returns the uninformative authentication failure.
// The cause is kept for logs and never rendered to clients by the
// boundary layers in this module.
func FailedToAuthenticate(cause error) *Error {
	return &Error{Code: CodeAuthentication, Message: authenticationMessage, Cause: cause}
}

// FailedToParse reports a malformed credential string or identifier.
func FailedToParse(message string, cause error) *Error {
	return &Error{Code: CodeAuthenticationInvalid, Message: message, Cause: cause}
}

// SigningFailure wraps a signer fault.
func SigningFailure(cause error, message string) *Error {
	return &Error{Code: CodeInternalSigning, Message: message, Cause: cause}
}

// EncryptorError wraps an encryptor fault.
func EncryptorError(cause error, message string) *Error {
	return &Error{Code: CodeInternalEncryption, Message: message, Cause: cause}
}

// ExcessTokenExpiration reports a requested expiry beyond the maximum.
func ExcessTokenExpiration(message string) *Error {
	return &Error{Code: CodeTokenExpirationExcess, Message: message}
}

// InvariantViolation reports stored data that contradicts an invariant.
func InvariantViolation(message string) *Error {
	return &Error{Code: CodeInternalInvariant, Message: message}
}

// Validation returns a VAL_001 error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf returns a VAL_001 error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound returns a NF_001 error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// NotFoundf returns a NF_001 error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// Forbidden returns an AUTHZ_001 error.
func Forbidden(message string) *Error {
	return New(CodeAuthorization, message)
}

// Internal returns an INT_001 error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf returns an INT_001 error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// FromError returns err as an *Error, wrapping foreign errors as INT_001.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}

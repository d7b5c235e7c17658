// Package errors defines the structured error type and the error taxonomy
// shared by every package in the authentication core.
//
// # Taxonomy
//
// Each failure the core can produce maps to one machine-readable [Code]:
//
//   - FailedToAuthenticate ([CodeAuthentication]): the credential is invalid,
//     expired, or belongs to an absent or deleted identity. The message is
//     deliberately uninformative.
//   - FailedToParse ([CodeAuthenticationInvalid]): a malformed credential
//     string or identifier.
//   - SigningFailure ([CodeInternalSigning]) and EncryptorError
//     ([CodeInternalEncryption]): key material or crypto backend faults.
//   - ExcessTokenExpiration ([CodeTokenExpirationExcess]): requested token
//     lifetime is beyond policy. User-correctable.
//   - StorageFailure ([CodeInternalDatabase], [CodeTimeoutDatabase]):
//     propagated from a storage collaborator.
//   - InvariantViolation ([CodeInternalInvariant]): stored data contradicts
//     an invariant, for example two provider links for one external id.
//
// Codes follow the pattern CATEGORY_NNN. The category decides the HTTP and
// gRPC status a boundary layer should answer with.
//
// # Usage
//
//	err := errors.New(errors.CodeAuthentication, "failed to authenticate")
//
//	if errors.IsAuthentication(err) {
//	    // respond 401
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Error("operation failed", "code", e.Code, "message", e.Message)
//	}
package errors

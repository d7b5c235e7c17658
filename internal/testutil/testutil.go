// Package testutil holds assertions shared by the authn test suites.
//
// Helpers call t.Helper() so failures point at the caller.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
//	_, err := machine.Complete(ctx, exchange)
//	testutil.RequireErrorCode(t, err, sserr.CodeAuthentication)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is RequireErrorCode without halting, for table rows.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// RequireOpaqueAuthFailure halts the test unless err is the generic
// authentication failure a caller sees. The message must not reveal which
// check failed.
func RequireOpaqueAuthFailure(t testing.TB, err error) {
	t.Helper()
	RequireErrorCode(t, err, sserr.CodeAuthentication)
	ssErr, _ := sserr.AsError(err)
	require.Equal(t, sserr.FailedToAuthenticate(nil).Message, ssErr.Message,
		"authentication failures must not leak detail")
}

// TempConfigFile writes content to config<ext> in a test temp dir and
// returns its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp config file %s", path)
	return path
}

package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// ===========================================================================
// Identity and credential records
// ===========================================================================

func TestIdentity_Subject(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	ident := Identity{
		ID:          id,
		Permissions: permissions.MustParseSet("users:read:self", "documents:read:assigned"),
		Assignments: map[string][]string{"documents": {"1", "2"}},
	}

	var _ permissions.Subject = ident
	assert.Equal(t, id.String(), ident.SubjectID())
	assert.Equal(t, []string{"1", "2"}, ident.AssignedIDs("documents"))
	assert.Empty(t, ident.AssignedIDs("groups"))

	got := ident.AssignedIDs("documents")
	got[0] = "mutated"
	assert.Equal(t, "1", ident.Assignments["documents"][0], "AssignedIDs returns a copy")

	expanded := ident.Permissions.Expand(ident)
	assert.True(t, expanded.Has(permissions.On("users", "read", id.String())))
	assert.True(t, expanded.Has(permissions.On("documents", "read", "2")))
}

func TestIdentity_Deleted(t *testing.T) {
	t.Parallel()
	now := time.Now()
	assert.False(t, Identity{}.Deleted())
	assert.True(t, Identity{DeletedAt: &now}.Deleted())
}

func TestAPIKey_Active(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := APIKey{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, key.Active(now))
	assert.False(t, key.Active(now.Add(time.Hour)), "expiry is exclusive")

	deleted := now.Add(-time.Minute)
	key.DeletedAt = &deleted
	assert.False(t, key.Active(now))
}

func TestAccessToken_Revoked(t *testing.T) {
	t.Parallel()
	now := time.Now()
	assert.False(t, AccessToken{}.Revoked())
	assert.True(t, AccessToken{RevokedAt: &now}.Revoked())
}

// ===========================================================================
// Attempt state machine
// ===========================================================================

func TestAttemptState_Valid(t *testing.T) {
	t.Parallel()
	for _, s := range []AttemptState{AttemptStateCreated, AttemptStateRemoteAuthenticated, AttemptStateCompleted, AttemptStateFailed} {
		assert.True(t, s.Valid(), s.String())
	}
	assert.False(t, AttemptState("").Valid())
	assert.False(t, AttemptState("pending").Valid())
}

func TestAttemptState_IsTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, AttemptStateCreated.IsTerminal())
	assert.False(t, AttemptStateRemoteAuthenticated.IsTerminal())
	assert.True(t, AttemptStateCompleted.IsTerminal())
	assert.True(t, AttemptStateFailed.IsTerminal())
}

func TestValidAttemptTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to AttemptState
		want     bool
	}{
		{AttemptStateCreated, AttemptStateRemoteAuthenticated, true},
		{AttemptStateCreated, AttemptStateFailed, true},
		{AttemptStateCreated, AttemptStateCompleted, false},
		{AttemptStateRemoteAuthenticated, AttemptStateCompleted, true},
		{AttemptStateRemoteAuthenticated, AttemptStateFailed, true},
		{AttemptStateRemoteAuthenticated, AttemptStateCreated, false},
		{AttemptStateRemoteAuthenticated, AttemptStateRemoteAuthenticated, false},
		{AttemptStateFailed, AttemptStateRemoteAuthenticated, false},
		{AttemptStateFailed, AttemptStateCreated, false},
		{AttemptStateCompleted, AttemptStateFailed, false},
		{AttemptState("bogus"), AttemptStateFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAttemptTransition(tt.from, tt.to))
		})
	}
}

func TestLoginAttempt_Transition(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &LoginAttempt{ID: uuid.New(), State: AttemptStateCreated, UpdatedAt: created}

	later := created.Add(time.Second)
	require.NoError(t, a.Transition(AttemptStateFailed, later))
	assert.Equal(t, AttemptStateFailed, a.State)
	assert.Equal(t, later, a.UpdatedAt)

	err := a.Transition(AttemptStateRemoteAuthenticated, later.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, sserr.CodeConflictStateTransition, sserr.GetCode(err))
	assert.Equal(t, AttemptStateFailed, a.State)
	assert.Equal(t, later, a.UpdatedAt)
}

func TestLoginAttempt_Expired(t *testing.T) {
	t.Parallel()
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &LoginAttempt{ExpiresAt: exp}
	assert.False(t, a.Expired(exp.Add(-time.Nanosecond)))
	assert.True(t, a.Expired(exp))
}

func TestLoginAttempt_Validate(t *testing.T) {
	t.Parallel()
	ok := &LoginAttempt{ID: uuid.New(), State: AttemptStateRemoteAuthenticated, AuthzCode: "L"}
	assert.NoError(t, ok.Validate())

	assert.Error(t, (&LoginAttempt{State: AttemptStateCreated}).Validate())
	assert.Error(t, (&LoginAttempt{ID: uuid.New(), State: "x"}).Validate())
	assert.Error(t, (&LoginAttempt{ID: uuid.New(), State: AttemptStateRemoteAuthenticated}).Validate())
	assert.Error(t, (&LoginAttempt{ID: uuid.New(), State: AttemptStateCreated, ProviderAuthzCode: "p"}).Validate())
}

func TestNewLoginAttempt_Validate(t *testing.T) {
	t.Parallel()
	good := NewLoginAttempt{ClientID: "c1", RedirectURI: "https://x/cb", Provider: "google", PKCEChallenge: "abc", PKCEChallengeMethod: "S256"}
	assert.NoError(t, good.Validate())

	missing := good
	missing.ClientID = ""
	assert.Equal(t, sserr.CodeValidationRequired, sserr.GetCode(missing.Validate()))

	plain := good
	plain.PKCEChallengeMethod = "plain"
	assert.Equal(t, sserr.CodeValidationFormat, sserr.GetCode(plain.Validate()))
}

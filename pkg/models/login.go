package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// AttemptState is the position of a login attempt in its state machine:
//
//	created → remote_authenticated → completed
//	   └───────────────┴───────────→ failed
//
// Completed and failed are terminal. A failed attempt is inert.
type AttemptState string

const (
	// AttemptStateCreated is set when a client starts a login. No local or
	// provider code exists yet.
	AttemptStateCreated AttemptState = "created"

	// AttemptStateRemoteAuthenticated is set when the provider calls back
	// with its code and a local code has been minted. Only attempts in
	// this state can be found by local code.
	AttemptStateRemoteAuthenticated AttemptState = "remote_authenticated"

	// AttemptStateCompleted is set once the local code has been exchanged.
	AttemptStateCompleted AttemptState = "completed"

	// AttemptStateFailed is set on provider denial, expiry or validation
	// errors.
	AttemptStateFailed AttemptState = "failed"
)

func (s AttemptState) String() string { return string(s) }

// Valid reports whether s is a known state.
func (s AttemptState) Valid() bool {
	switch s {
	case AttemptStateCreated, AttemptStateRemoteAuthenticated,
		AttemptStateCompleted, AttemptStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s AttemptState) IsTerminal() bool {
	return s == AttemptStateCompleted || s == AttemptStateFailed
}

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptStateCreated:             {AttemptStateRemoteAuthenticated, AttemptStateFailed},
	AttemptStateRemoteAuthenticated: {AttemptStateCompleted, AttemptStateFailed},
}

// ValidAttemptTransition reports whether from may move to to. Same-state
// moves are not transitions.
func ValidAttemptTransition(from, to AttemptState) bool {
	if from == to {
		return false
	}
	for _, t := range attemptTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// LoginAttempt correlates a client's authorization request with the
// remote provider round trip.
type LoginAttempt struct {
	ID    uuid.UUID    `json:"id" db:"id"`
	State AttemptState `json:"attempt_state" db:"attempt_state"`

	ClientID            string `json:"client_id" db:"client_id"`
	RedirectURI         string `json:"redirect_uri" db:"redirect_uri"`
	ClientState         string `json:"state,omitempty" db:"state"`
	PKCEChallenge       string `json:"pkce_challenge,omitempty" db:"pkce_challenge"`
	PKCEChallengeMethod string `json:"pkce_challenge_method,omitempty" db:"pkce_challenge_method"`
	Scope               string `json:"scope,omitempty" db:"scope"`

	// AuthzCode is the local code returned to the client. Minted by the
	// server on the provider callback, never derived from client input.
	AuthzCode string `json:"authz_code,omitempty" db:"authz_code"`

	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	Provider             string `json:"provider" db:"provider"`
	ProviderState        string `json:"provider_state" db:"provider_state"`
	ProviderPKCEVerifier string `json:"provider_pkce_verifier,omitempty" db:"provider_pkce_verifier"`
	ProviderAuthzCode    string `json:"provider_authz_code,omitempty" db:"provider_authz_code"`

	// Error records why the attempt failed, for operators.
	Error string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewLoginAttempt is the client-supplied part of a new attempt.
type NewLoginAttempt struct {
	ClientID            string
	RedirectURI         string
	ClientState         string
	PKCEChallenge       string
	PKCEChallengeMethod string
	Scope               string
	Provider            string
}

// Validate checks the fields every stored attempt must have.
func (n NewLoginAttempt) Validate() error {
	switch {
	case n.ClientID == "":
		return sserr.New(sserr.CodeValidationRequired, "models: login attempt client id is required")
	case n.RedirectURI == "":
		return sserr.New(sserr.CodeValidationRequired, "models: login attempt redirect uri is required")
	case n.Provider == "":
		return sserr.New(sserr.CodeValidationRequired, "models: login attempt provider is required")
	case n.PKCEChallenge != "" && n.PKCEChallengeMethod != "" && n.PKCEChallengeMethod != "S256":
		return sserr.Newf(sserr.CodeValidationFormat, "models: unsupported pkce method %q", n.PKCEChallengeMethod)
	}
	return nil
}

// Expired reports whether the attempt has outlived its expiry at now.
func (a *LoginAttempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Transition moves the attempt to to, stamping UpdatedAt. Illegal moves
// return CodeConflictStateTransition and leave the attempt unchanged.
func (a *LoginAttempt) Transition(to AttemptState, now time.Time) error {
	if !ValidAttemptTransition(a.State, to) {
		return sserr.Newf(sserr.CodeConflictStateTransition,
			"models: login attempt cannot move from %s to %s", a.State, to)
	}
	a.State = to
	a.UpdatedAt = now
	return nil
}

// Validate checks a stored attempt for internal consistency.
func (a *LoginAttempt) Validate() error {
	if a.ID == uuid.Nil {
		return errors.New("models: login attempt id is required")
	}
	if !a.State.Valid() {
		return fmt.Errorf("models: invalid login attempt state %q", a.State)
	}
	if a.State == AttemptStateRemoteAuthenticated && a.AuthzCode == "" {
		return errors.New("models: remote authenticated attempt has no local code")
	}
	if a.State == AttemptStateCreated && (a.AuthzCode != "" || a.ProviderAuthzCode != "") {
		return errors.New("models: created attempt must not carry codes")
	}
	return nil
}

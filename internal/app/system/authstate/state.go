// internal/app/system/authstate/state.go
package authstate

import (
	"errors"

	"github.com/dalemusser/impacthub/internal/domain/models"
)

// State is the merged view of one browser session: who is signed in, their
// profile, and whether the engine is still resolving either of them.
type State struct {
	User      *models.MergedUser
	IsLoading bool
	Err       error
}

// IsLoggedIn reports whether a user is present.
func (s State) IsLoggedIn() bool { return s.User != nil }

// Message returns the user-facing text for Err, or "".
func (s State) Message() string {
	if s.Err == nil {
		return ""
	}
	var sre *SessionReadError
	var soe *SignOutError
	switch {
	case errors.As(s.Err, &sre):
		return "We couldn't refresh your profile. Some details may be out of date."
	case errors.As(s.Err, &soe):
		return "Signing out failed. Please try again."
	default:
		return s.Err.Error()
	}
}

// SessionReadError is a profile subscription failure after sign-in. The
// last known user is kept.
type SessionReadError struct {
	UID string
	Err error
}

func (e *SessionReadError) Error() string {
	return "read profile " + e.UID + ": " + e.Err.Error()
}

func (e *SessionReadError) Unwrap() error { return e.Err }

// SignOutError is a rejected sign-out call. The user stays signed in.
type SignOutError struct {
	Err error
}

func (e *SignOutError) Error() string { return "sign out: " + e.Err.Error() }

func (e *SignOutError) Unwrap() error { return e.Err }

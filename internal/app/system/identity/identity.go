// Package identity is the hub's identity provider: who is signed in to each
// browser session, and the credential directory behind sign-in.
//
// A browser session is identified by an opaque session ID (sid) carried in
// the session cookie. Provider.Client(sid) returns that session's view of
// the provider: a stream of auth-state changes and a sign-out call. The
// stream's first emission is the current principal (nil when signed out).
package identity

import (
	"context"
	"errors"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/domain/models"
)

// Client is one browser session's view of the identity provider.
type Client interface {
	// SubscribeAuthState streams the session's principal, nil meaning
	// signed out. Emissions arrive in order on a provider goroutine.
	SubscribeAuthState(onChange func(*models.Principal)) docstore.Unsubscribe
	// SignOut ends the session. The resulting nil emission, not this call,
	// is what consumers should react to.
	SignOut(ctx context.Context) error
}

// Provider hands out per-session clients and records sign-ins.
type Provider interface {
	Client(sessionID string) Client
	SignIn(ctx context.Context, sessionID string, p models.Principal) error
}

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("identity: invalid email or password")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrNoSession is returned when signing in without a session ID.
	ErrNoSession = errors.New("identity: missing session id")
	// ErrNoPassword is returned when changing the password of an account
	// that signs in through an external provider.
	ErrNoPassword = errors.New("identity: account has no password")
	// ErrWeakPassword is returned for a new password shorter than
	// MinPasswordLength.
	ErrWeakPassword = errors.New("identity: password too short")
	// ErrSamePassword is returned when the new password equals the current one.
	ErrSamePassword = errors.New("identity: new password matches current password")
)

// MinPasswordLength is the shortest password ChangePassword accepts.
const MinPasswordLength = 8

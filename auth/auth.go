// Package auth defines the authentication boundary of the engine.
//
// The engine never implements authentication itself: channels registered
// with RequireAuth delegate to an injected Authenticator. Two adapters are
// shipped, a bcrypt-verified shared secret and an OAuth2 token check; hosts
// with their own session machinery implement the interface directly.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is returned when the presented credentials do not
// authenticate the caller. Implementations should return it (or wrap it) for
// every rejection so callers can match with errors.Is.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator decides whether a caller is authenticated.
type Authenticator interface {
	// Authenticate verifies the credential presented by senderID.
	// A nil return admits the call.
	Authenticate(ctx context.Context, senderID, credential string) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, senderID, credential string) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, senderID, credential string) error {
	return f(ctx, senderID, credential)
}

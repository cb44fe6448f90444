package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenAuthenticator verifies the caller-presented credential against the
// access token issued by an oauth2.TokenSource. The source is typically a
// reuse source wrapping the host's OAuth flow, so expiry and refresh are the
// source's concern; this adapter only compares and checks validity.
type TokenAuthenticator struct {
	source oauth2.TokenSource
}

// NewTokenAuthenticator creates an authenticator on the given token source.
func NewTokenAuthenticator(source oauth2.TokenSource) (*TokenAuthenticator, error) {
	if source == nil {
		return nil, fmt.Errorf("token source must not be nil")
	}
	return &TokenAuthenticator{source: source}, nil
}

// Authenticate admits the call when the presented credential equals the
// source's current, unexpired access token. Comparison is constant-time.
func (a *TokenAuthenticator) Authenticate(_ context.Context, _, credential string) error {
	tok, err := a.source.Token()
	if err != nil {
		return fmt.Errorf("token source: %w", err)
	}
	if !tok.Valid() {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(tok.AccessToken), []byte(credential)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

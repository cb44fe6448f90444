package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretAuthenticator verifies a shared secret against a bcrypt hash.
// The plaintext secret is never retained; only its hash is.
type SecretAuthenticator struct {
	hash []byte
}

// NewSecretAuthenticator hashes secret with bcrypt at the given cost.
// A cost of zero uses bcrypt.DefaultCost.
func NewSecretAuthenticator(secret string, cost int) (*SecretAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}
	return &SecretAuthenticator{hash: hash}, nil
}

// NewSecretAuthenticatorFromHash uses a pre-computed bcrypt hash, letting
// hosts keep the plaintext out of the process entirely.
func NewSecretAuthenticatorFromHash(hash []byte) (*SecretAuthenticator, error) {
	if len(hash) == 0 {
		return nil, fmt.Errorf("hash must not be empty")
	}
	return &SecretAuthenticator{hash: hash}, nil
}

// Authenticate compares the presented credential against the stored hash.
func (a *SecretAuthenticator) Authenticate(_ context.Context, _, credential string) error {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(credential)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Package auth handles account credentials and session tokens.
package auth

import (
	"context"

	"github.com/mmynk/limitly/internal/models"
)

// Authenticator verifies who a caller is. AuthService depends only on this
// interface; PasswordAuthenticator is the one implementation.
type Authenticator interface {
	// Register creates an account. Errors are *apperr.Error values
	// (EMAIL_EXISTS, WEAK_PASSWORD, missing fields).
	Register(ctx context.Context, email, name, credential string) (*models.User, error)

	// Authenticate returns the account for valid credentials and
	// ErrInvalidCredentials otherwise, without saying which part was wrong.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	ValidateCredential(credential string) error
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
)

// userFinder is the slice of the user store the authenticator reads.
type userFinder interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// PasswordAuthenticator verifies username/password pairs against stored
// bcrypt hashes.
type PasswordAuthenticator struct {
	users userFinder
}

func NewPasswordAuthenticator(users userFinder) *PasswordAuthenticator {
	return &PasswordAuthenticator{users: users}
}

// Authenticate returns the matching user or domain.ErrInvalidCredentials.
// An unknown username and a wrong password are indistinguishable to the caller.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			burnCompare(password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

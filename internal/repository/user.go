package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

type TokenRepository interface {
	CreateToken(ctx context.Context, userID string, purpose domain.TokenPurpose, tokenHash string, expiresAt time.Time) error
	// ClaimToken marks an unused, unexpired token as used and returns it.
	// Anything else yields domain.ErrTokenInvalid.
	ClaimToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string) (*domain.ActionToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

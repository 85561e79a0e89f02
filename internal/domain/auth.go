package domain

import (
	"errors"
	"time"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)

type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Credentials only live for the duration of a login request.
type Credentials struct {
	Username string
	Password string
}

type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// ActionToken is a single-use emailed token. Only the sha256 of the raw
// token is ever stored.
type ActionToken struct {
	ID        string
	UserID    string
	Purpose   TokenPurpose
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

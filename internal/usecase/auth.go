package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"github.com/ErlanBelekov/backend-skeleton/internal/metrics"
	"github.com/ErlanBelekov/backend-skeleton/internal/repository"
	"github.com/go-playground/validator/v10"
)

const (
	defaultActionTokenTTL = time.Hour
	// operationTimeout bounds work that keeps running after the caller
	// has gone away.
	operationTimeout = 30 * time.Second
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

type TokenIssuer interface {
	Issue(user *domain.User) (string, error)
}

type Notifier interface {
	SendWelcomeEmail(ctx context.Context, to, username string) error
	SendPasswordResetEmail(ctx context.Context, to, resetLink string) error
	SendVerificationEmail(ctx context.Context, to, verificationLink string) error
}

type AuthUsecase struct {
	authn    Authenticator
	users    repository.UserRepository
	tokens   repository.TokenRepository
	issuer   TokenIssuer
	notifier Notifier
	logger   *slog.Logger
	validate *validator.Validate

	actionTokenTTL time.Duration
	appBaseURL     string
}

type AuthUsecaseDeps struct {
	Authenticator Authenticator
	Users         repository.UserRepository
	Tokens        repository.TokenRepository
	Issuer        TokenIssuer
	Notifier      Notifier
	Logger        *slog.Logger

	ActionTokenTTL time.Duration
	AppBaseURL     string
}

func NewAuthUsecase(deps AuthUsecaseDeps) *AuthUsecase {
	ttl := deps.ActionTokenTTL
	if ttl <= 0 {
		ttl = defaultActionTokenTTL
	}
	v := validator.New()
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register username validation: %v", err))
	}

	return &AuthUsecase{
		authn:          deps.Authenticator,
		users:          deps.Users,
		tokens:         deps.Tokens,
		issuer:         deps.Issuer,
		notifier:       deps.Notifier,
		logger:         deps.Logger.With("component", "auth_usecase"),
		validate:       v,
		actionTokenTTL: ttl,
		appBaseURL:     strings.TrimSuffix(deps.AppBaseURL, "/"),
	}
}

// Login verifies credentials and returns a signed access token for the
// verified identity. Input problems return domain.ErrValidation before the
// authenticator is touched; rejected credentials return the authenticator's
// error unchanged.
func (u *AuthUsecase) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	verified, err := u.authn.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			return "", err
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("authenticate: %w", err)
	}

	// The store lookup must land on the identity the authenticator just
	// verified; anything else is a server fault, not a login failure.
	user, err := u.users.FindByUsername(ctx, creds.Username)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("load identity: %w", err)
	}
	if user.ID != verified.ID {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("load identity: authenticator returned %s, store returned %s", verified.ID, user.ID)
	}

	token, err := u.issuer.Issue(user)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("issue token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return token, nil
}

type RegisterInput struct {
	Username string `validate:"required,min=3,max=64,username"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
}

// Register creates the account and emails a verification link. A failed
// email does not undo the registration.
func (u *AuthUsecase) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := u.validateStruct(input); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return nil, err
	}

	user, err := u.users.Create(ctx, &domain.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	metrics.RegistrationsTotal.Inc()

	if err := u.sendVerification(ctx, user); err != nil {
		u.logger.ErrorContext(ctx, "send verification email", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// ResendVerification issues a fresh verification link for an unverified account.
func (u *AuthUsecase) ResendVerification(ctx context.Context, userID string) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user.EmailVerified() {
		return nil
	}
	return u.sendVerification(ctx, user)
}

func (u *AuthUsecase) sendVerification(ctx context.Context, user *domain.User) error {
	raw, err := u.storeActionToken(ctx, user.ID, domain.PurposeEmailVerification)
	if err != nil {
		return err
	}
	link := u.appBaseURL + "/api/auth/verify-email?token=" + raw
	if err := u.notifier.SendVerificationEmail(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// VerifyEmail claims a verification token, marks the address verified and
// sends the welcome email.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, rawToken string) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	mt, err := u.tokens.ClaimToken(ctx, domain.PurposeEmailVerification, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("claim token: %w", err)
	}

	user, err := u.users.FindByID(ctx, mt.UserID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	if err := u.users.MarkEmailVerified(ctx, user.ID, time.Now()); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if err := u.notifier.SendWelcomeEmail(ctx, user.Email, user.Username); err != nil {
		u.logger.ErrorContext(ctx, "send welcome email", "user_id", user.ID, "error", err)
	}
	return nil
}

// RequestPasswordReset emails a reset link when the address belongs to an
// account. Unknown addresses succeed silently.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	user, err := u.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	raw, err := u.storeActionToken(ctx, user.ID, domain.PurposePasswordReset)
	if err != nil {
		return err
	}

	link := u.appBaseURL + "/reset-password?token=" + raw
	if err := u.notifier.SendPasswordResetEmail(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword validates the new password first so a bad password does
// not burn the token.
func (u *AuthUsecase) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return err
	}

	mt, err := u.tokens.ClaimToken(ctx, domain.PurposePasswordReset, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("claim token: %w", err)
	}

	if err := u.users.UpdatePassword(ctx, mt.UserID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (u *AuthUsecase) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// storeActionToken generates a random token, stores its hash and returns the raw value.
func (u *AuthUsecase) storeActionToken(ctx context.Context, userID string, purpose domain.TokenPurpose) (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	rawToken := hex.EncodeToString(raw)

	expiresAt := time.Now().Add(u.actionTokenTTL)
	if err := u.tokens.CreateToken(ctx, userID, purpose, hashToken(rawToken), expiresAt); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return rawToken, nil
}

func (u *AuthUsecase) validateStruct(v any) error {
	if err := u.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed on %q", domain.ErrValidation, strings.ToLower(f.Field()), f.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// detach keeps the caller's values but not its cancellation, so a client
// that hangs up cannot leave a login or an email half done.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), operationTimeout)
}

func hashToken(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

package usecase_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"github.com/ErlanBelekov/backend-skeleton/internal/usecase"
)

// ---- fakes ----

type fakeAuthenticator struct {
	calls        int
	authenticate func(ctx context.Context, username, password string) (*domain.User, error)
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	a.calls++
	return a.authenticate(ctx, username, password)
}

type fakeUserRepo struct {
	create            func(ctx context.Context, user *domain.User) (*domain.User, error)
	findByID          func(ctx context.Context, id string) (*domain.User, error)
	findByUsername    func(ctx context.Context, username string) (*domain.User, error)
	findByEmail       func(ctx context.Context, email string) (*domain.User, error)
	updatePassword    func(ctx context.Context, userID, hash string) error
	markEmailVerified func(ctx context.Context, userID string, at time.Time) error
	lookups           int
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	return r.create(ctx, user)
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.lookups++
	return r.findByUsername(ctx, username)
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByEmail(ctx, email)
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, userID, hash string) error {
	return r.updatePassword(ctx, userID, hash)
}

func (r *fakeUserRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return r.markEmailVerified(ctx, userID, at)
}

type fakeTokenRepo struct {
	createToken func(ctx context.Context, userID string, purpose domain.TokenPurpose, hash string, expiresAt time.Time) error
	claimToken  func(ctx context.Context, purpose domain.TokenPurpose, hash string) (*domain.ActionToken, error)
}

func (r *fakeTokenRepo) CreateToken(ctx context.Context, userID string, purpose domain.TokenPurpose, hash string, expiresAt time.Time) error {
	return r.createToken(ctx, userID, purpose, hash, expiresAt)
}

func (r *fakeTokenRepo) ClaimToken(ctx context.Context, purpose domain.TokenPurpose, hash string) (*domain.ActionToken, error) {
	return r.claimToken(ctx, purpose, hash)
}

func (r *fakeTokenRepo) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeIssuer struct {
	calls int
}

func (i *fakeIssuer) Issue(user *domain.User) (string, error) {
	i.calls++
	return "token-for-" + user.ID, nil
}

type sentEmail struct {
	kind, to, value string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *fakeNotifier) record(kind, to, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind, to, value})
	return n.err
}

func (n *fakeNotifier) SendWelcomeEmail(_ context.Context, to, username string) error {
	return n.record("welcome", to, username)
}

func (n *fakeNotifier) SendPasswordResetEmail(_ context.Context, to, link string) error {
	return n.record("reset", to, link)
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, to, link string) error {
	return n.record("verification", to, link)
}

// ---- helpers ----

const testBaseURL = "http://localhost:8080"

var testUser = &domain.User{ID: "user-1", Username: "alice", Email: "alice@example.com"}

type deps struct {
	authn    *fakeAuthenticator
	users    *fakeUserRepo
	tokens   *fakeTokenRepo
	issuer   *fakeIssuer
	notifier *fakeNotifier
}

func newUsecase(d deps) *usecase.AuthUsecase {
	if d.authn == nil {
		d.authn = &fakeAuthenticator{}
	}
	if d.users == nil {
		d.users = &fakeUserRepo{}
	}
	if d.tokens == nil {
		d.tokens = &fakeTokenRepo{}
	}
	if d.issuer == nil {
		d.issuer = &fakeIssuer{}
	}
	if d.notifier == nil {
		d.notifier = &fakeNotifier{}
	}
	return usecase.NewAuthUsecase(usecase.AuthUsecaseDeps{
		Authenticator:  d.authn,
		Users:          d.users,
		Tokens:         d.tokens,
		Issuer:         d.issuer,
		Notifier:       d.notifier,
		Logger:         slog.Default(),
		ActionTokenTTL: time.Hour,
		AppBaseURL:     testBaseURL + "/",
	})
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "?token=")
	if idx == -1 {
		t.Fatalf("link %q has no ?token=", link)
	}
	return link[idx+len("?token="):]
}

// ---- Login ----

func TestLogin_ValidCredentials_ReturnsTokenForIdentity(t *testing.T) {
	authn := &fakeAuthenticator{authenticate: func(_ context.Context, _, _ string) (*domain.User, error) {
		return testUser, nil
	}}
	users := &fakeUserRepo{findByUsername: func(_ context.Context, username string) (*domain.User, error) {
		if username != testUser.Username {
			return nil, domain.ErrUserNotFound
		}
		return testUser, nil
	}}

	token, err := newUsecase(deps{authn: authn, users: users}).Login(context.Background(),
		domain.Credentials{Username: "alice", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "token-for-user-1" {
		t.Errorf("token = %q, want token-for-user-1", token)
	}
}

func TestLogin_CallerGone_StillCompletes(t *testing.T) {
	authn := &fakeAuthenticator{authenticate: func(ctx context.Context, _, _ string) (*domain.User, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := ctx.Deadline(); !ok {
			return nil, errors.New("no deadline on authenticator context")
		}
		return testUser, nil
	}}
	users := &fakeUserRepo{findByUsername: func(ctx context.Context, _ string) (*domain.User, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return testUser, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := newUsecase(deps{authn: authn, users: users}).Login(ctx,
		domain.Credentials{Username: "alice", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "token-for-user-1" {
		t.Errorf("token = %q", token)
	}
}

func TestLogin_RejectedCredentials_SkipsLookupAndIssue(t *testing.T) {
	authn := &fakeAuthenticator{authenticate: func(_ context.Context, _, _ string) (*domain.User, error) {
		return nil, domain.ErrInvalidCredentials
	}}
	users := &fakeUserRepo{}
	issuer := &fakeIssuer{}

	_, err := newUsecase(deps{authn: authn, users: users, issuer: issuer}).Login(context.Background(),
		domain.Credentials{Username: "alice", Password: "wrong"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if users.lookups != 0 {
		t.Errorf("identity lookup called %d times, want 0", users.lookups)
	}
	if issuer.calls != 0 {
		t.Errorf("issuer called %d times, want 0", issuer.calls)
	}
}

func TestLogin_EmptyInput_ValidationErrorWithoutAuthenticator(t *testing.T) {
	cases := []domain.Credentials{
		{Username: "", Password: "secret"},
		{Username: "alice", Password: ""},
		{Username: "   ", Password: "secret"},
	}
	for _, creds := range cases {
		authn := &fakeAuthenticator{}
		_, err := newUsecase(deps{authn: authn}).Login(context.Background(), creds)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: want ErrValidation, got %v", creds, err)
		}
		if authn.calls != 0 {
			t.Errorf("%+v: authenticator called", creds)
		}
	}
}

func TestLogin_IdentityMissingAfterAuth_IsServerError(t *testing.T) {
	authn := &fakeAuthenticator{authenticate: func(_ context.Context, _, _ string) (*domain.User, error) {
		return testUser, nil
	}}
	users := &fakeUserRepo{findByUsername: func(_ context.Context, _ string) (*domain.User, error) {
		return nil, domain.ErrUserNotFound
	}}

	_, err := newUsecase(deps{authn: authn, users: users}).Login(context.Background(),
		domain.Credentials{Username: "alice", Password: "secret-pass"})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("want wrapped ErrUserNotFound, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrValidation) {
		t.Error("inconsistency must not map to a client error")
	}
}

func TestLogin_IdentityMismatch_IsError(t *testing.T) {
	authn := &fakeAuthenticator{authenticate: func(_ context.Context, _, _ string) (*domain.User, error) {
		return testUser, nil
	}}
	users := &fakeUserRepo{findByUsername: func(_ context.Context, _ string) (*domain.User, error) {
		return &domain.User{ID: "someone-else", Username: "alice"}, nil
	}}
	issuer := &fakeIssuer{}

	_, err := newUsecase(deps{authn: authn, users: users, issuer: issuer}).Login(context.Background(),
		domain.Credentials{Username: "alice", Password: "secret-pass"})
	if err == nil {
		t.Fatal("want error on identity mismatch")
	}
	if issuer.calls != 0 {
		t.Error("token issued for mismatched identity")
	}
}

func TestLogin_ConcurrentUsers_GetOwnTokens(t *testing.T) {
	accounts := map[string]*domain.User{
		"alice": {ID: "id-alice", Username: "alice"},
		"bob":   {ID: "id-bob", Username: "bob"},
	}
	authn := &fakeAuthenticator{authenticate: func(_ context.Context, username, _ string) (*domain.User, error) {
		return accounts[username], nil
	}}
	uc := usecase.NewAuthUsecase(usecase.AuthUsecaseDeps{
		Authenticator: &concurrentAuthenticator{inner: authn},
		Users: &concurrentFinder{find: func(username string) (*domain.User, error) {
			return accounts[username], nil
		}},
		Tokens:   &fakeTokenRepo{},
		Issuer:   &fakeIssuer{},
		Notifier: &fakeNotifier{},
		Logger:   slog.Default(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for name, user := range accounts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				token, err := uc.Login(context.Background(), domain.Credentials{Username: name, Password: "pw"})
				if err != nil {
					t.Errorf("login %s: %v", name, err)
					return
				}
				if token != "token-for-"+user.ID {
					t.Errorf("login %s got %q", name, token)
				}
			}()
		}
	}
	wg.Wait()
}

// concurrentAuthenticator and concurrentFinder avoid the call counters of
// the other fakes, which are not goroutine-safe.
type concurrentAuthenticator struct{ inner *fakeAuthenticator }

func (a *concurrentAuthenticator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	return a.inner.authenticate(ctx, username, password)
}

type concurrentFinder struct {
	fakeUserRepo
	find func(username string) (*domain.User, error)
}

func (f *concurrentFinder) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.find(username)
}

// ---- Register ----

func TestRegister_CreatesUserAndSendsVerification(t *testing.T) {
	var createdHash string
	var storedHash string
	var storedPurpose domain.TokenPurpose

	users := &fakeUserRepo{create: func(_ context.Context, u *domain.User) (*domain.User, error) {
		createdHash = u.PasswordHash
		return &domain.User{ID: "new-1", Username: u.Username, Email: u.Email}, nil
	}}
	tokens := &fakeTokenRepo{createToken: func(_ context.Context, _ string, p domain.TokenPurpose, h string, _ time.Time) error {
		storedPurpose, storedHash = p, h
		return nil
	}}
	notifier := &fakeNotifier{}

	user, err := newUsecase(deps{users: users, tokens: tokens, notifier: notifier}).Register(context.Background(),
		usecase.RegisterInput{Username: "alice", Email: " Alice@Example.com ", Password: "long-enough"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized", user.Email)
	}
	if !auth.VerifyPassword("long-enough", createdHash) {
		t.Error("stored hash does not match password")
	}
	if storedPurpose != domain.PurposeEmailVerification {
		t.Errorf("purpose = %q", storedPurpose)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].kind != "verification" {
		t.Fatalf("sent = %+v, want one verification email", notifier.sent)
	}
	link := notifier.sent[0].value
	if !strings.HasPrefix(link, testBaseURL+"/api/auth/verify-email?token=") {
		t.Errorf("link = %q", link)
	}
	raw := tokenFromLink(t, link)
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte(raw))); storedHash != want {
		t.Errorf("stored hash %q != sha256 of emailed token %q", storedHash, want)
	}
}

func TestRegister_CallerGone_StillStoresTokenAndSendsVerification(t *testing.T) {
	users := &fakeUserRepo{create: func(ctx context.Context, u *domain.User) (*domain.User, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.User{ID: "new-1", Username: u.Username, Email: u.Email}, nil
	}}
	tokens := &fakeTokenRepo{createToken: func(ctx context.Context, _ string, _ domain.TokenPurpose, _ string, _ time.Time) error {
		return ctx.Err()
	}}
	notifier := &fakeNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newUsecase(deps{users: users, tokens: tokens, notifier: notifier}).Register(ctx,
		usecase.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].kind != "verification" {
		t.Errorf("sent = %+v, want one verification email", notifier.sent)
	}
}

func TestRegister_EmailFailure_StillSucceeds(t *testing.T) {
	users := &fakeUserRepo{create: func(_ context.Context, u *domain.User) (*domain.User, error) {
		return &domain.User{ID: "new-1", Username: u.Username, Email: u.Email}, nil
	}}
	tokens := &fakeTokenRepo{createToken: func(context.Context, string, domain.TokenPurpose, string, time.Time) error { return nil }}
	notifier := &fakeNotifier{err: errors.New("smtp unavailable")}

	if _, err := newUsecase(deps{users: users, tokens: tokens, notifier: notifier}).Register(context.Background(),
		usecase.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegister_Invalid_ReturnsValidationError(t *testing.T) {
	cases := []usecase.RegisterInput{
		{Username: "", Email: "a@b.com", Password: "long-enough"},
		{Username: "al", Email: "a@b.com", Password: "long-enough"},
		{Username: "bad name!", Email: "a@b.com", Password: "long-enough"},
		{Username: "alice", Email: "not-an-email", Password: "long-enough"},
		{Username: "alice", Email: "a@b.com", Password: "short"},
	}
	for _, in := range cases {
		_, err := newUsecase(deps{}).Register(context.Background(), in)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: want ErrValidation, got %v", in, err)
		}
	}
}

func TestRegister_Duplicate_Propagates(t *testing.T) {
	users := &fakeUserRepo{create: func(context.Context, *domain.User) (*domain.User, error) {
		return nil, domain.ErrUsernameTaken
	}}

	_, err := newUsecase(deps{users: users}).Register(context.Background(),
		usecase.RegisterInput{Username: "alice", Email: "a@b.com", Password: "long-enough"})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Errorf("want ErrUsernameTaken, got %v", err)
	}
}

// ---- VerifyEmail ----

func TestVerifyEmail_MarksVerifiedAndWelcomes(t *testing.T) {
	const raw = "raw-verification-token"
	var verifiedID string

	tokens := &fakeTokenRepo{claimToken: func(_ context.Context, p domain.TokenPurpose, h string) (*domain.ActionToken, error) {
		if p != domain.PurposeEmailVerification || h != fmt.Sprintf("%x", sha256.Sum256([]byte(raw))) {
			return nil, domain.ErrTokenInvalid
		}
		return &domain.ActionToken{UserID: testUser.ID}, nil
	}}
	users := &fakeUserRepo{
		findByID: func(context.Context, string) (*domain.User, error) { return testUser, nil },
		markEmailVerified: func(_ context.Context, id string, _ time.Time) error {
			verifiedID = id
			return nil
		},
	}
	notifier := &fakeNotifier{}

	if err := newUsecase(deps{users: users, tokens: tokens, notifier: notifier}).VerifyEmail(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verifiedID != testUser.ID {
		t.Errorf("verified %q, want %q", verifiedID, testUser.ID)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != (sentEmail{"welcome", testUser.Email, testUser.Username}) {
		t.Errorf("sent = %+v", notifier.sent)
	}
}

func TestVerifyEmail_InvalidToken(t *testing.T) {
	tokens := &fakeTokenRepo{claimToken: func(context.Context, domain.TokenPurpose, string) (*domain.ActionToken, error) {
		return nil, domain.ErrTokenInvalid
	}}

	err := newUsecase(deps{tokens: tokens}).VerifyEmail(context.Background(), "bad")
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
}

// ---- Password reset ----

func TestRequestPasswordReset_UnknownEmail_Silent(t *testing.T) {
	users := &fakeUserRepo{findByEmail: func(context.Context, string) (*domain.User, error) {
		return nil, domain.ErrUserNotFound
	}}
	notifier := &fakeNotifier{}

	if err := newUsecase(deps{users: users, notifier: notifier}).RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent = %+v, want nothing", notifier.sent)
	}
}

func TestRequestPasswordReset_SendsLink(t *testing.T) {
	var storedHash string
	users := &fakeUserRepo{findByEmail: func(context.Context, string) (*domain.User, error) { return testUser, nil }}
	tokens := &fakeTokenRepo{createToken: func(_ context.Context, _ string, p domain.TokenPurpose, h string, exp time.Time) error {
		if p != domain.PurposePasswordReset {
			t.Errorf("purpose = %q", p)
		}
		if !exp.After(time.Now()) {
			t.Errorf("expiry %v not in the future", exp)
		}
		storedHash = h
		return nil
	}}
	notifier := &fakeNotifier{}

	if err := newUsecase(deps{users: users, tokens: tokens, notifier: notifier}).RequestPasswordReset(context.Background(), testUser.Email); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].kind != "reset" {
		t.Fatalf("sent = %+v", notifier.sent)
	}
	raw := tokenFromLink(t, notifier.sent[0].value)
	if storedHash != fmt.Sprintf("%x", sha256.Sum256([]byte(raw))) {
		t.Error("stored hash does not match emailed token")
	}
}

func TestRequestPasswordReset_EmailError_Propagates(t *testing.T) {
	sendErr := errors.New("smtp unavailable")
	users := &fakeUserRepo{findByEmail: func(context.Context, string) (*domain.User, error) { return testUser, nil }}
	tokens := &fakeTokenRepo{createToken: func(context.Context, string, domain.TokenPurpose, string, time.Time) error { return nil }}

	err := newUsecase(deps{users: users, tokens: tokens, notifier: &fakeNotifier{err: sendErr}}).
		RequestPasswordReset(context.Background(), testUser.Email)
	if !errors.Is(err, sendErr) {
		t.Errorf("want wrapped sendErr, got %v", err)
	}
}

func TestResetPassword_ShortPassword_DoesNotClaimToken(t *testing.T) {
	claimed := false
	tokens := &fakeTokenRepo{claimToken: func(context.Context, domain.TokenPurpose, string) (*domain.ActionToken, error) {
		claimed = true
		return &domain.ActionToken{UserID: testUser.ID}, nil
	}}

	err := newUsecase(deps{tokens: tokens}).ResetPassword(context.Background(), "raw", "short")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
	if claimed {
		t.Error("token claimed despite invalid password")
	}
}

func TestResetPassword_UpdatesHash(t *testing.T) {
	var updatedID, updatedHash string
	tokens := &fakeTokenRepo{claimToken: func(_ context.Context, p domain.TokenPurpose, _ string) (*domain.ActionToken, error) {
		if p != domain.PurposePasswordReset {
			return nil, domain.ErrTokenInvalid
		}
		return &domain.ActionToken{UserID: testUser.ID}, nil
	}}
	users := &fakeUserRepo{updatePassword: func(_ context.Context, id, hash string) error {
		updatedID, updatedHash = id, hash
		return nil
	}}

	if err := newUsecase(deps{users: users, tokens: tokens}).ResetPassword(context.Background(), "raw", "new-password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updatedID != testUser.ID || !auth.VerifyPassword("new-password", updatedHash) {
		t.Errorf("updated %q with non-matching hash", updatedID)
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	tokens := &fakeTokenRepo{claimToken: func(context.Context, domain.TokenPurpose, string) (*domain.ActionToken, error) {
		return nil, domain.ErrTokenInvalid
	}}

	err := newUsecase(deps{tokens: tokens}).ResetPassword(context.Background(), "bad", "new-password")
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/cache"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/limiter"
	"github.com/dmitrijs2005/authgate/internal/server/mail"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/authgate/internal/server/reset"
	"github.com/dmitrijs2005/authgate/internal/server/signup"
)

// --- test fakes ---

// memUsersRepo is an in-memory users.Repository with the same uniqueness
// semantics as the Postgres implementation.
type memUsersRepo struct {
	mu       sync.Mutex
	nextID   int64
	rows     []*models.User
	failWith error
	getCalls int
}

func (r *memUsersRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []*models.User
	for _, u := range r.rows {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.rows {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	r.nextID++
	created := &models.User{
		ID:           r.nextID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now(),
	}
	r.rows = append(r.rows, created)
	return created, nil
}

func (r *memUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.rows {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsersRepo) UpdatePasswordHash(ctx context.Context, username, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	for _, u := range r.rows {
		if u.Username == username {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeRepoManager struct {
	u *memUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository           { return m.u }

type recordingMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (r *recordingMailer) Enqueue(ctx context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatalf("no mail enqueued")
	}
	return r.msgs[len(r.msgs)-1]
}

// --- helpers ---

type testEnv struct {
	svc    *CredentialService
	repo   *memUsersRepo
	mock   sqlmock.Sqlmock
	mr     *miniredis.Miniredis
	mailer *recordingMailer
	signer *auth.Signer
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		SecretKey:                  "k",
		AccessTokenValidity:        15 * time.Minute,
		ResetTokenValidity:         30 * time.Minute,
		SignupConfirmationValidity: 30 * time.Minute,
		LoginFailWindow:            15 * time.Second,
		LoginFailMaxAttempts:       5,
		ResetURLBase:               "http://localhost/password-reset/confirm",
	}

	repo := &memUsersRepo{}
	signer := auth.NewSigner([]byte(cfg.SecretKey))
	mailer := &recordingMailer{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	svc := NewCredentialService(
		db,
		&fakeRepoManager{u: repo},
		signup.NewPendingStore(c, cfg.SignupConfirmationValidity),
		signup.NewCodeStore(c, cfg.SignupConfirmationValidity),
		reset.NewTokenStore(c, cfg.ResetTokenValidity),
		limiter.New(c, cfg.LoginFailWindow, cfg.LoginFailMaxAttempts),
		signer,
		mailer,
		logger,
		cfg,
	)

	return &testEnv{svc: svc, repo: repo, mock: mock, mr: mr, mailer: mailer, signer: signer, cfg: cfg}
}

func (e *testEnv) seedUser(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	u, err := e.repo.Create(context.Background(), &models.User{
		Username: username, Email: email, PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// --- signup ---

func TestRequestEmailConfirmation_StoresStateAndMails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	sentTo, err := e.svc.RequestEmailConfirmation(ctx, "alice", "pa$$word", "alice@example.com")
	if err != nil {
		t.Fatalf("RequestEmailConfirmation error: %v", err)
	}
	if sentTo != "alice@example.com" {
		t.Fatalf("unexpected recipient: %q", sentTo)
	}

	// nothing durable yet
	if len(e.repo.rows) != 0 {
		t.Fatalf("signup request must not create an account")
	}

	code, err := e.mr.Get("email_confirm:alice@example.com")
	if err != nil {
		t.Fatalf("confirmation code not stored: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("unexpected code %q", code)
	}
	if !e.mr.Exists("signup:alice@example.com") {
		t.Fatalf("pending signup not stored")
	}
	if ttl := e.mr.TTL("signup:alice@example.com"); ttl != 30*time.Minute {
		t.Fatalf("unexpected pending TTL %v", ttl)
	}

	msg := e.mailer.last(t)
	if msg.To != "alice@example.com" {
		t.Fatalf("mail to %q", msg.To)
	}
	if !strings.Contains(msg.Body, code) {
		t.Fatalf("mail body does not carry the code")
	}
	if strings.Contains(msg.Body, "pa$$word") {
		t.Fatalf("mail body leaks the password")
	}
}

func TestRequestEmailConfirmation_Conflicts(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		want     error
	}{
		{"both taken by one account", "alice", "alice@example.com", common.ErrDuplicateCredentials},
		{"username taken", "alice", "new@example.com", common.ErrUsernameTaken},
		{"email taken", "newuser", "alice@example.com", common.ErrEmailTaken},
		{"both taken by different accounts", "alice", "bob@example.com", common.ErrDuplicateCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.seedUser(t, "alice", "alice@example.com", "x")
			e.seedUser(t, "bob", "bob@example.com", "x")

			_, err := e.svc.RequestEmailConfirmation(context.Background(), tt.username, "pw", tt.email)
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
			if len(e.mailer.msgs) != 0 {
				t.Fatalf("conflicting signup must not send mail")
			}
		})
	}
}

func TestRequestEmailConfirmation_RepoFault(t *testing.T) {
	e := newTestEnv(t)
	e.repo.failWith = errors.New("connection refused")

	_, err := e.svc.RequestEmailConfirmation(context.Background(), "alice", "pw", "alice@example.com")
	if !errors.Is(err, common.ErrStorage) {
		t.Fatalf("want ErrStorage, got %v", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("storage fault must stay opaque to callers: %v", err)
	}
}

func requestSignup(t *testing.T, e *testEnv, username, password, email string) string {
	t.Helper()
	if _, err := e.svc.RequestEmailConfirmation(context.Background(), username, password, email); err != nil {
		t.Fatalf("RequestEmailConfirmation error: %v", err)
	}
	code, err := e.mr.Get("email_confirm:" + email)
	if err != nil {
		t.Fatalf("code not stored: %v", err)
	}
	return code
}

func TestRegister_Success(t *testing.T) {
	e := newTestEnv(t)
	code := requestSignup(t, e, "alice", "pa$$word", "alice@example.com")

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	user, err := e.svc.Register(context.Background(), "alice@example.com", code)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == 0 || user.Username != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	ok, err := cryptox.VerifyPassword(user.PasswordHash, "pa$$word")
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}

	// one-shot: the transient entries are gone
	if e.mr.Exists("email_confirm:alice@example.com") || e.mr.Exists("signup:alice@example.com") {
		t.Fatalf("transient signup state must be cleaned up")
	}

	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRegister_CodeExpired(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.Register(context.Background(), "alice@example.com", "123456")
	if !errors.Is(err, common.ErrCodeExpired) {
		t.Fatalf("want ErrCodeExpired, got %v", err)
	}
}

func TestRegister_CodeMismatch_KeepsState(t *testing.T) {
	e := newTestEnv(t)
	code := requestSignup(t, e, "alice", "pw", "alice@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err := e.svc.Register(context.Background(), "alice@example.com", wrong)
	if !errors.Is(err, common.ErrCodeMismatch) {
		t.Fatalf("want ErrCodeMismatch, got %v", err)
	}

	// a wrong guess mutates nothing; the right code still works
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	if _, err := e.svc.Register(context.Background(), "alice@example.com", code); err != nil {
		t.Fatalf("retry with right code: %v", err)
	}
}

func TestRegister_PendingExpired(t *testing.T) {
	e := newTestEnv(t)
	code := requestSignup(t, e, "alice", "pw", "alice@example.com")

	// envelope gone, code still live
	e.mr.Del("signup:alice@example.com")

	_, err := e.svc.Register(context.Background(), "alice@example.com", code)
	if !errors.Is(err, common.ErrSignupExpired) {
		t.Fatalf("want ErrSignupExpired, got %v", err)
	}
}

func TestRegister_RivalSignupWins(t *testing.T) {
	e := newTestEnv(t)
	code := requestSignup(t, e, "alice", "pw", "alice@example.com")

	// a rival signup for the same username finished first
	e.seedUser(t, "alice", "other@example.com", "x")

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	_, err := e.svc.Register(context.Background(), "alice@example.com", code)
	if !errors.Is(err, common.ErrDuplicateCredentials) {
		t.Fatalf("want ErrDuplicateCredentials, got %v", err)
	}

	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// --- login ---

func TestAuthenticate_Success(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "pa$$word")

	// a stale failure counter from before
	e.mr.Set("login_fail:alice", "2")

	token, err := e.svc.Authenticate(context.Background(), "alice", "pa$$word")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	subject, err := e.signer.Decode(token)
	if err != nil || subject != "alice" {
		t.Fatalf("token decode: subject=%q err=%v", subject, err)
	}

	if e.mr.Exists("login_fail:alice") {
		t.Fatalf("success must reset the failure counter")
	}
}

func TestAuthenticate_Failures_Indistinguishable(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "pa$$word")

	for _, username := range []string{"alice", "nosuchuser"} {
		_, err := e.svc.Authenticate(context.Background(), username, "wrong")
		if !errors.Is(err, common.ErrInvalidCredentials) {
			t.Fatalf("%s: want ErrInvalidCredentials, got %v", username, err)
		}
		if got, _ := e.mr.Get("login_fail:" + username); got != "1" {
			t.Fatalf("%s: failure not counted, counter=%q", username, got)
		}
	}
}

func TestAuthenticate_BlockedSkipsAccountLookup(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "pa$$word")
	e.mr.Set("login_fail:alice", "5")
	e.mr.SetTTL("login_fail:alice", 15*time.Second)

	before := e.repo.getCalls
	_, err := e.svc.Authenticate(context.Background(), "alice", "pa$$word")
	if !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("want ErrTooManyAttempts, got %v", err)
	}
	if e.repo.getCalls != before {
		t.Fatalf("blocked login must not hit the account store")
	}
}

func TestAuthenticate_ThrottleLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "pa$$word")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := e.svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, common.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// threshold reached: even the right password is rejected
	if _, err := e.svc.Authenticate(ctx, "alice", "pa$$word"); !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("want ErrTooManyAttempts, got %v", err)
	}

	// the block clears on its own once the window lapses
	e.mr.FastForward(16 * time.Second)
	if _, err := e.svc.Authenticate(ctx, "alice", "pa$$word"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

// --- password reset ---

func TestRequestPasswordReset_IssuesTokenAndMailsLink(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "pa$$word")

	if err := e.svc.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}

	token, err := e.mr.Get("password_reset_token:alice")
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if subject, err := e.signer.Decode(token); err != nil || subject != "alice" {
		t.Fatalf("stored token invalid: subject=%q err=%v", subject, err)
	}
	if ttl := e.mr.TTL("password_reset_token:alice"); ttl != 30*time.Minute {
		t.Fatalf("unexpected token TTL %v", ttl)
	}

	msg := e.mailer.last(t)
	if msg.To != "alice@example.com" {
		t.Fatalf("mail to %q", msg.To)
	}
	if !strings.Contains(msg.Body, "token=") {
		t.Fatalf("mail body carries no reset link: %q", msg.Body)
	}
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	e := newTestEnv(t)

	err := e.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, common.ErrUnknownEmail) {
		t.Fatalf("want ErrUnknownEmail, got %v", err)
	}
	if len(e.mailer.msgs) != 0 {
		t.Fatalf("unknown email must not send mail")
	}
}

func TestConfirmPasswordReset_Success_ThenReplayFails(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "oldpassword")
	ctx := context.Background()

	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	token, _ := e.mr.Get("password_reset_token:alice")

	if err := e.svc.ConfirmPasswordReset(ctx, token, "newpassword"); err != nil {
		t.Fatalf("ConfirmPasswordReset error: %v", err)
	}

	u, err := e.repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if ok, _ := cryptox.VerifyPassword(u.PasswordHash, "newpassword"); !ok {
		t.Fatalf("password not updated")
	}
	if ok, _ := cryptox.VerifyPassword(u.PasswordHash, "oldpassword"); ok {
		t.Fatalf("old password still verifies")
	}

	// the link is one-shot even though the JWT itself is still fresh
	if err := e.svc.ConfirmPasswordReset(ctx, token, "thirdpassword"); !errors.Is(err, common.ErrTokenNotFound) {
		t.Fatalf("want ErrTokenNotFound on replay, got %v", err)
	}
}

func TestConfirmPasswordReset_SupersededToken(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "oldpassword")
	ctx := context.Background()

	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first, _ := e.mr.Get("password_reset_token:alice")

	// tokens carry a unique id, so the second request stores a different one
	if err := e.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	second, _ := e.mr.Get("password_reset_token:alice")
	if first == second {
		t.Fatalf("expected a fresh token on re-request")
	}

	if err := e.svc.ConfirmPasswordReset(ctx, first, "newpassword"); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("superseded token: want ErrInvalidToken, got %v", err)
	}
	if err := e.svc.ConfirmPasswordReset(ctx, second, "newpassword"); err != nil {
		t.Fatalf("latest token must work: %v", err)
	}
}

func TestConfirmPasswordReset_BadTokens(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "alice@example.com", "oldpassword")
	ctx := context.Background()

	expired, err := e.signer.Issue("alice", -time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for name, token := range map[string]string{
		"garbage": "not-a-token",
		"expired": expired,
	} {
		if err := e.svc.ConfirmPasswordReset(ctx, token, "newpassword"); !errors.Is(err, common.ErrInvalidToken) {
			t.Fatalf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}

	// verifies cryptographically but was never requested
	fresh, err := e.signer.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := e.svc.ConfirmPasswordReset(ctx, fresh, "newpassword"); !errors.Is(err, common.ErrTokenNotFound) {
		t.Fatalf("unrequested token: want ErrTokenNotFound, got %v", err)
	}
}

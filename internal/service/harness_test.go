package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testAccessSecret       = "access-secret-0123456789abcdefghijklmnop"
	testVerificationSecret = "verify-secret-0123456789abcdefghijklmnop"
	testResetSecret        = "reset-secret-0123456789abcdefghijklmnopq"
	testPepper             = "pepper-0123456789abcdefghijklmnopqrstuv"
	testPassword           = "correct horse battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	kind string
	to   string
	link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, to, link string) error {
	return m.record("verification", to, link)
}

func (m *recordingMailer) SendPasswordResetEmail(_ context.Context, to, link string) error {
	return m.record("password_reset", to, link)
}

func (m *recordingMailer) record(kind, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, link: link})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) lastToken(t *testing.T, kind string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind != kind {
			continue
		}
		u, err := url.Parse(m.sent[i].link)
		if err != nil {
			t.Fatalf("parse link: %v", err)
		}
		return u.Query().Get("token")
	}
	t.Fatalf("no %s mail sent", kind)
	return ""
}

type testHarness struct {
	db           *gorm.DB
	clock        *testClock
	repos        repository.Repositories
	tx           repository.TxManager
	hasher       *security.PasswordHasher
	codec        *security.JWTManager
	ledger       *RefreshLedger
	verification *OneTimeTokenService
	resets       *OneTimeTokenService
	revocations  *RevocationService
	mailer       *recordingMailer
	auth         *AuthService
	sessions     *SessionService
}

type harnessOption func(*AuthConfig, *RefreshLedgerConfig)

func withMaxActiveSessions(n int) harnessOption {
	return func(a *AuthConfig, _ *RefreshLedgerConfig) { a.MaxActiveSessions = n }
}

func withDeviceBinding() harnessOption {
	return func(_ *AuthConfig, l *RefreshLedgerConfig) { l.BindDevice = true }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.OneTimeToken{}, &domain.AccessTokenRevocation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	authCfg := AuthConfig{AccessTokenTTL: 15 * time.Minute, RequireEmailVerified: true, MaxActiveSessions: 5}
	ledgerCfg := RefreshLedgerConfig{Pepper: testPepper, TTL: 7 * 24 * time.Hour, Retention: 7 * 24 * time.Hour}
	for _, opt := range opts {
		opt(&authCfg, &ledgerCfg)
	}

	h := &testHarness{db: db, clock: clock, mailer: &recordingMailer{}}
	h.repos = repository.NewRepositories(db)
	h.tx = repository.NewTxManager(db)
	h.hasher = security.NewPasswordHasher(4)
	h.codec = security.NewJWTManager("commerce-auth-test", "commerce-api", security.PurposeSecrets{
		Access:            testAccessSecret,
		EmailVerification: testVerificationSecret,
		PasswordReset:     testResetSecret,
	}).WithClock(clock.Now)
	h.ledger = NewRefreshLedger(h.repos.Sessions, ledgerCfg, log).WithClock(clock.Now)
	h.verification = NewEmailVerificationService(h.codec, h.repos.OneTimeTokens, h.tx, 24*time.Hour, log).WithClock(clock.Now)
	h.resets = NewPasswordResetService(h.codec, h.repos.OneTimeTokens, h.tx, 15*time.Minute, log).WithClock(clock.Now)
	h.revocations = NewRevocationService(h.repos.Revocations, NewInMemoryRevocationCacheStore(), log).WithClock(clock.Now)
	h.auth = NewAuthService(h.repos.Users, h.tx, h.hasher, h.codec, h.ledger, h.verification, h.resets,
		h.revocations, h.mailer, NewLinkBuilder("https://shop.example.com"), authCfg, log).WithClock(clock.Now)
	h.sessions = NewSessionService(h.repos.Sessions)
	h.sessions.now = clock.Now
	return h
}

// createUser inserts an active user directly, bypassing registration.
func (h *testHarness) createUser(t *testing.T, email string, verified bool) *domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, PasswordHash: hash, Role: domain.RoleCustomer, IsActive: true, EmailVerified: verified}
	if err := h.repos.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (h *testHarness) login(t *testing.T, email string, device Device) *SessionResult {
	t.Helper()
	res, err := h.auth.Login(context.Background(), email, testPassword, device)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func (h *testHarness) principal(t *testing.T, access string) Principal {
	t.Helper()
	claims, err := h.codec.Verify(security.PurposeAccess, access)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	p, err := PrincipalFromClaims(claims)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	return p
}

func (h *testHarness) session(t *testing.T, raw string) *domain.Session {
	t.Helper()
	s, err := h.repos.Sessions.FindByHash(context.Background(), security.HashRefreshToken(raw, testPepper))
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	return s
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

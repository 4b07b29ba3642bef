package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestAuthServiceRegistrationIsVerificationGated(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	view, err := h.auth.Register(ctx, RegisterInput{Email: " New@Shop.Example ", Password: testPassword, FirstName: "Ada"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if view.Email != "new@shop.example" || view.EmailVerified {
		t.Fatalf("unexpected user view %+v", view)
	}

	_, err = h.auth.Login(ctx, "new@shop.example", testPassword, testDevice)
	expectErr(t, err, ErrEmailNotVerified)

	raw := h.mailer.lastToken(t, "verification")
	if err := h.auth.VerifyEmail(ctx, raw); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	expectErr(t, h.auth.VerifyEmail(ctx, raw), ErrTokenAlreadyUsed)

	res := h.login(t, "NEW@shop.example", testDevice)
	if res.AccessToken == "" || res.RefreshToken == "" || !res.User.EmailVerified {
		t.Fatalf("unexpected login result %+v", res)
	}
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "taken@shop.example", true)

	_, err := h.auth.Register(ctx, RegisterInput{Email: "TAKEN@shop.example", Password: testPassword})
	expectErr(t, err, ErrConflict)
}

func TestAuthServiceRegisterRollsBackWhenMailFails(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.mailer.fail = errors.New("smtp down")

	_, err := h.auth.Register(ctx, RegisterInput{Email: "a@shop.example", Password: testPassword})
	expectErr(t, err, ErrServiceUnavailable)
	if _, err := h.repos.Users.FindByEmail(ctx, "a@shop.example"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected user rolled back, got %v", err)
	}

	h.mailer.fail = nil
	if _, err := h.auth.Register(ctx, RegisterInput{Email: "a@shop.example", Password: testPassword}); err != nil {
		t.Fatalf("register retry: %v", err)
	}
}

func TestAuthServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "known@shop.example", true)

	_, errUnknown := h.auth.Login(ctx, "ghost@shop.example", testPassword, testDevice)
	_, errWrong := h.auth.Login(ctx, "known@shop.example", "wrong password", testDevice)
	expectErr(t, errUnknown, ErrInvalidCredentials)
	expectErr(t, errWrong, ErrInvalidCredentials)
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("expected identical errors, got %q and %q", errUnknown, errWrong)
	}
}

func TestAuthServiceRejectsPasswordsSharingBcryptPrefix(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	stored := strings.Repeat("p", security.MaxPasswordBytes)
	hash, err := h.hasher.Hash(stored)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: "long@shop.example", PasswordHash: hash, Role: domain.RoleCustomer, IsActive: true, EmailVerified: true}
	if err := h.repos.Users.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	res, err := h.auth.Login(ctx, u.Email, stored+"WRONG-SUFFIX", testDevice)
	expectErr(t, err, ErrInvalidCredentials)
	if res != nil {
		t.Fatal("expected no tokens for a non-matching password")
	}

	res, err = h.auth.Login(ctx, u.Email, stored, testDevice)
	if err != nil {
		t.Fatalf("login with exact password: %v", err)
	}
	p := h.principal(t, res.AccessToken)
	expectErr(t, h.auth.ChangePassword(ctx, p, stored+"x", "replacement secret"), ErrInvalidCredentials)
}

func TestAuthServiceLoginAndRefreshAreTraced(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		_ = tp.Shutdown(ctx)
	})

	h := newTestHarness(t)
	h.createUser(t, "traced@shop.example", true)
	res := h.login(t, "traced@shop.example", testDevice)
	if _, err := h.auth.Refresh(ctx, res.RefreshToken, testDevice); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, err := h.auth.Refresh(ctx, res.RefreshToken, testDevice)
	expectErr(t, err, ErrTokenReused)

	var names []string
	failed := 0
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Status().Code == codes.Error {
			failed++
		}
	}
	want := []string{"auth.login", "refresh_ledger.validate_and_rotate", "refresh_ledger.validate_and_rotate"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected spans %v, got %v", want, names)
	}
	if failed != 1 {
		t.Fatalf("expected only the replayed rotation to fail, got %d failed spans", failed)
	}
}

func TestAuthServiceLoginRejectsDisabledAccount(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	u := h.createUser(t, "off@shop.example", true)
	if err := h.repos.Users.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err := h.auth.Login(ctx, "off@shop.example", testPassword, testDevice)
	expectErr(t, err, ErrAccountDisabled)
}

func TestAuthServiceLoginIssuesBoundAccessToken(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	u := h.createUser(t, "c@shop.example", true)
	res := h.login(t, "c@shop.example", testDevice)

	claims, err := h.codec.Verify(security.PurposeAccess, res.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != u.Email || claims.Role != "customer" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.SessionID != h.session(t, res.RefreshToken).TokenID {
		t.Fatal("expected sid to reference the refresh session")
	}
	got, err := h.repos.Users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.LastLoginAt == nil {
		t.Fatal("expected last login recorded")
	}
}

func TestAuthServiceLoginRehashesOutdatedCost(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	u := h.createUser(t, "r@shop.example", true)

	h.auth.hasher = security.NewPasswordHasher(5)
	h.login(t, "r@shop.example", testDevice)

	got, _ := h.repos.Users.FindByID(ctx, u.ID)
	if h.auth.hasher.NeedsRehash(got.PasswordHash) {
		t.Fatal("expected password rehashed at the configured cost")
	}
}

func TestAuthServiceLoginEnforcesSessionLimit(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, withMaxActiveSessions(2))
	u := h.createUser(t, "many@shop.example", true)
	for i := 0; i < 3; i++ {
		h.login(t, "many@shop.example", testDevice)
	}
	active, err := h.repos.Sessions.ListActiveByUserID(ctx, u.ID, h.clock.Now())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
}

func TestAuthServiceRefreshRotatesAndDetectsReuse(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "d@shop.example", true)
	first := h.login(t, "d@shop.example", testDevice)

	second, err := h.auth.Refresh(ctx, first.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == "" {
		t.Fatal("expected a new token pair")
	}

	_, err = h.auth.Refresh(ctx, first.RefreshToken, testDevice)
	expectErr(t, err, ErrTokenReused)
	_, err = h.auth.Refresh(ctx, second.RefreshToken, testDevice)
	expectErr(t, err, ErrTokenReused)
}

func TestAuthServiceRefreshBlockedForDisabledAccount(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	u := h.createUser(t, "e@shop.example", true)
	a := h.login(t, "e@shop.example", testDevice)
	b := h.login(t, "e@shop.example", testDevice)

	if err := h.repos.Users.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err := h.auth.Refresh(ctx, a.RefreshToken, testDevice)
	expectErr(t, err, ErrAccountDisabled)
	if !h.session(t, b.RefreshToken).IsRevoked() {
		t.Fatal("expected every session revoked for a disabled account")
	}
}

func TestAuthServiceLogoutRevokesRefreshAndAccess(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "f@shop.example", true)
	res := h.login(t, "f@shop.example", testDevice)
	p := h.principal(t, res.AccessToken)

	if err := h.auth.LogoutOne(ctx, p, res.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	revoked, err := h.revocations.IsRevoked(ctx, p.TokenID)
	if err != nil || !revoked {
		t.Fatalf("expected access token revoked, revoked=%v err=%v", revoked, err)
	}
	if !h.session(t, res.RefreshToken).IsRevoked() {
		t.Fatal("expected refresh session revoked")
	}
	if err := h.auth.LogoutOne(ctx, p, res.RefreshToken); err != nil {
		t.Fatalf("repeated logout must succeed: %v", err)
	}
}

func TestAuthServiceLogoutLeavesAnotherUsersRefreshToken(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "owner@shop.example", true)
	h.createUser(t, "caller@shop.example", true)
	owner := h.login(t, "owner@shop.example", testDevice)
	caller := h.login(t, "caller@shop.example", testDevice)

	if err := h.auth.LogoutOne(ctx, h.principal(t, caller.AccessToken), owner.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if h.session(t, owner.RefreshToken).IsRevoked() {
		t.Fatal("expected owner's refresh session untouched")
	}
	if _, err := h.auth.Refresh(ctx, owner.RefreshToken, testDevice); err != nil {
		t.Fatalf("owner refresh: %v", err)
	}
}

func TestAuthServiceLogoutWithoutRefreshUsesSessionClaim(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "g@shop.example", true)
	res := h.login(t, "g@shop.example", testDevice)

	if err := h.auth.LogoutOne(ctx, h.principal(t, res.AccessToken), ""); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !h.session(t, res.RefreshToken).IsRevoked() {
		t.Fatal("expected session named by sid revoked")
	}
}

func TestAuthServiceLogoutAllRevokesEveryDevice(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "h@shop.example", true)
	phone := h.login(t, "h@shop.example", testDevice)
	laptop := h.login(t, "h@shop.example", Device{UserAgent: "firefox"})

	n, err := h.auth.LogoutAll(ctx, h.principal(t, phone.AccessToken))
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}
	_, err = h.auth.Refresh(ctx, laptop.RefreshToken, Device{UserAgent: "firefox"})
	if err == nil {
		t.Fatal("expected refresh to fail after logout-all")
	}
}

func TestAuthServiceForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "i@shop.example", true)

	h.auth.ForgotPassword(ctx, "nobody@shop.example")
	if h.mailer.count() != 0 {
		t.Fatal("expected no mail for an unknown address")
	}
	h.auth.ForgotPassword(ctx, "i@shop.example")
	if h.mailer.count() != 1 {
		t.Fatal("expected one reset mail for a known address")
	}

	h.mailer.fail = errors.New("smtp down")
	h.auth.ForgotPassword(ctx, "i@shop.example")
}

func TestAuthServiceResetPasswordRevokesSessions(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "j@shop.example", true)
	before := h.login(t, "j@shop.example", testDevice)

	h.auth.ForgotPassword(ctx, "j@shop.example")
	raw := h.mailer.lastToken(t, "password_reset")
	if err := h.auth.ResetPassword(ctx, raw, "a brand new secret"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	expectErr(t, h.auth.ResetPassword(ctx, raw, "another secret"), ErrTokenAlreadyUsed)

	if !h.session(t, before.RefreshToken).IsRevoked() {
		t.Fatal("expected existing sessions revoked")
	}
	_, err := h.auth.Login(ctx, "j@shop.example", testPassword, testDevice)
	expectErr(t, err, ErrInvalidCredentials)
	if _, err := h.auth.Login(ctx, "j@shop.example", "a brand new secret", testDevice); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuthServiceChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "k@shop.example", true)
	res := h.login(t, "k@shop.example", testDevice)
	p := h.principal(t, res.AccessToken)

	expectErr(t, h.auth.ChangePassword(ctx, p, "wrong", "next secret value"), ErrInvalidCredentials)
	if err := h.auth.ChangePassword(ctx, p, testPassword, "next secret value"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if !h.session(t, res.RefreshToken).IsRevoked() {
		t.Fatal("expected sessions revoked after password change")
	}
	if revoked, _ := h.revocations.IsRevoked(ctx, p.TokenID); !revoked {
		t.Fatal("expected current access token revoked")
	}
}

func TestAuthServiceResendVerification(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.createUser(t, "l@shop.example", false)
	h.createUser(t, "m@shop.example", true)

	h.auth.ResendVerification(ctx, "m@shop.example")
	h.auth.ResendVerification(ctx, "ghost@shop.example")
	if h.mailer.count() != 0 {
		t.Fatal("expected no mail for verified or unknown accounts")
	}
	h.auth.ResendVerification(ctx, "l@shop.example")
	if err := h.auth.VerifyEmail(ctx, h.mailer.lastToken(t, "verification")); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAuthServiceRevokeUserSessions(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	admin := h.createUser(t, "admin@shop.example", true)
	target := h.createUser(t, "target@shop.example", true)
	res := h.login(t, "target@shop.example", testDevice)

	n, err := h.auth.RevokeUserSessions(ctx, Principal{UserID: admin.ID}, target.ID)
	if err != nil {
		t.Fatalf("revoke user sessions: %v", err)
	}
	if n != 1 || !h.session(t, res.RefreshToken).IsRevoked() {
		t.Fatalf("expected target session revoked, n=%d", n)
	}
	_, err = h.auth.RevokeUserSessions(ctx, Principal{UserID: admin.ID}, 9999)
	expectErr(t, err, ErrTokenInvalid)
}

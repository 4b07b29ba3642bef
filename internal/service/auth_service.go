package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
)

type AuthConfig struct {
	AccessTokenTTL       time.Duration
	RequireEmailVerified bool
	MaxActiveSessions    int
}

// UserView is the public projection of a user. It never carries the password
// hash.
type UserView struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewUserView(u *domain.User) UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// SessionResult is returned by login and refresh.
type SessionResult struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	User            UserView  `json:"user"`
}

// Principal identifies the caller of an authenticated request, as read from a
// verified access token.
type Principal struct {
	UserID    uint
	Email     string
	Role      string
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

func PrincipalFromClaims(claims *security.Claims) (Principal, error) {
	if claims == nil {
		return Principal{}, ErrTokenInvalid
	}
	id, err := ParseUserID(claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		UserID:    id,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func ParseUserID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenInvalid
	}
	return uint(id), nil
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthService struct {
	users        repository.UserRepository
	tx           repository.TxManager
	hasher       *security.PasswordHasher
	codec        *security.JWTManager
	ledger       *RefreshLedger
	verification *OneTimeTokenService
	resets       *OneTimeTokenService
	revocations  *RevocationService
	mailer       Mailer
	links        LinkBuilder
	cfg          AuthConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tx repository.TxManager,
	hasher *security.PasswordHasher,
	codec *security.JWTManager,
	ledger *RefreshLedger,
	verification *OneTimeTokenService,
	resets *OneTimeTokenService,
	revocations *RevocationService,
	mailer Mailer,
	links LinkBuilder,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:        users,
		tx:           tx,
		hasher:       hasher,
		codec:        codec,
		ledger:       ledger,
		verification: verification,
		resets:       resets,
		revocations:  revocations,
		mailer:       mailer,
		links:        links,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates an unverified customer and mails a verification link. No
// tokens are issued until the address is verified. The user row is rolled
// back when the mail cannot be dispatched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*UserView, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        repository.NormalizeEmail(in.Email),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleCustomer,
		IsActive:     true,
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return ErrConflict
			}
			return unavailable(err)
		}
		raw, err := s.verification.CreateInTx(ctx, repos, user.ID)
		if err != nil {
			return err
		}
		if err := s.mailer.SendVerificationEmail(ctx, user.Email, s.links.VerifyEmail(raw)); err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Audit(ctx, s.logger, "user_registered", "user_id", user.ID)
	view := NewUserView(user)
	return &view, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, raw string) error {
	record, err := s.verification.Redeem(ctx, raw, func(ctx context.Context, repos repository.Repositories, token *domain.OneTimeToken) error {
		if err := repos.Users.MarkEmailVerified(ctx, token.UserID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrTokenInvalid
			}
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.Audit(ctx, s.logger, "email_verified", "user_id", record.UserID)
	return nil
}

// ResendVerification mails a fresh link when email belongs to an active,
// unverified account. The outcome is never reported to the caller.
func (s *AuthService) ResendVerification(ctx context.Context, email string) {
	user, ok := s.lookupForMail(ctx, email, "resend_verification")
	if !ok || user.EmailVerified {
		return
	}
	raw, err := s.verification.Create(ctx, user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "verification token issue failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, s.links.VerifyEmail(raw)); err != nil {
		s.logger.ErrorContext(ctx, "verification email dispatch failed", "user_id", user.ID, "error", err)
	}
}

func (s *AuthService) Login(ctx context.Context, email, password string, device Device) (*SessionResult, error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	result, err := s.login(ctx, email, password, device)
	observability.EndSpan(span, err)
	observability.RecordAuthLogin(ctx, outcome(err))
	return result, err
}

func (s *AuthService) login(ctx context.Context, email, password string, device Device) (*SessionResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, unavailable(err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		observability.Audit(ctx, s.logger, "login_failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if s.cfg.RequireEmailVerified && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user.ID, password)
	}

	issued, err := s.ledger.Issue(ctx, user.ID, device, "")
	if err != nil {
		return nil, err
	}
	if n, err := s.ledger.EnforceLimit(ctx, user.ID, s.cfg.MaxActiveSessions); err != nil {
		s.logger.WarnContext(ctx, "session limit enforcement failed", "user_id", user.ID, "error", err)
	} else if n > 0 {
		observability.Audit(ctx, s.logger, "session_limit_revoked", "user_id", user.ID, "revoked", n)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "last login update failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	result, err := s.sessionResult(user, issued)
	if err != nil {
		return nil, err
	}
	observability.Audit(ctx, s.logger, "login_succeeded", "user_id", user.ID, "session_id", issued.Session.ID)
	return result, nil
}

func (s *AuthService) rehash(ctx context.Context, userID uint, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", userID, "error", err)
	}
}

// Refresh rotates raw and mints a new access token. Accounts that were
// disabled or lost verification since login have every session revoked.
func (s *AuthService) Refresh(ctx context.Context, raw string, device Device) (*SessionResult, error) {
	result, err := s.refresh(ctx, raw, device)
	observability.RecordAuthRefresh(ctx, outcome(err))
	return result, err
}

func (s *AuthService) refresh(ctx context.Context, raw string, device Device) (*SessionResult, error) {
	issued, err := s.ledger.ValidateAndRotate(ctx, raw, device)
	if err != nil {
		return nil, err
	}
	userID := issued.Session.UserID
	user, err := s.users.FindByID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, unavailable(err)
	}
	if user == nil || !user.IsActive || (s.cfg.RequireEmailVerified && !user.EmailVerified) {
		if _, err := s.ledger.RevokeAllForUser(ctx, userID, domain.RevokeReasonAccountState); err != nil {
			return nil, err
		}
		observability.SecurityEvent(ctx, s.logger, "refresh_blocked_account_state", "user_id", userID)
		if user != nil && !user.IsActive {
			return nil, ErrAccountDisabled
		}
		return nil, ErrTokenInvalid
	}
	return s.sessionResult(user, issued)
}

// LogoutOne revokes the presented refresh token when it belongs to the caller,
// or the caller's own session when none is presented, and revokes the
// caller's access token.
func (s *AuthService) LogoutOne(ctx context.Context, principal Principal, rawRefresh string) error {
	err := s.logoutOne(ctx, principal, rawRefresh)
	observability.RecordAuthLogout(ctx, "single", outcome(err))
	return err
}

func (s *AuthService) logoutOne(ctx context.Context, principal Principal, rawRefresh string) error {
	if rawRefresh != "" {
		if _, err := s.ledger.Revoke(ctx, principal.UserID, rawRefresh, domain.RevokeReasonLogout); err != nil {
			return err
		}
	} else if principal.SessionID != "" {
		if err := s.ledger.RevokeByTokenID(ctx, principal.UserID, principal.SessionID, domain.RevokeReasonLogout); err != nil {
			return err
		}
	}
	if err := s.revokeAccess(ctx, principal, domain.RevokeReasonLogout); err != nil {
		return err
	}
	observability.Audit(ctx, s.logger, "logout", "user_id", principal.UserID)
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, principal Principal) (int64, error) {
	n, err := s.ledger.RevokeAllForUser(ctx, principal.UserID, domain.RevokeReasonLogoutAll)
	if err == nil {
		err = s.revokeAccess(ctx, principal, domain.RevokeReasonLogoutAll)
	}
	observability.RecordAuthLogout(ctx, "all", outcome(err))
	if err != nil {
		return 0, err
	}
	observability.Audit(ctx, s.logger, "logout_all", "user_id", principal.UserID, "revoked", n)
	return n, nil
}

// ForgotPassword mails a reset link when email belongs to an active account.
// Callers always see the same outcome.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	user, ok := s.lookupForMail(ctx, email, "forgot_password")
	if !ok {
		return
	}
	raw, err := s.resets.Create(ctx, user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "password reset token issue failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, s.links.ResetPassword(raw)); err != nil {
		s.logger.ErrorContext(ctx, "password reset email dispatch failed", "user_id", user.ID, "error", err)
		return
	}
	observability.Audit(ctx, s.logger, "password_reset_requested", "user_id", user.ID)
}

// ResetPassword sets a new password using a reset token and revokes every
// refresh session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	var revoked int64
	record, err := s.resets.Redeem(ctx, raw, func(ctx context.Context, repos repository.Repositories, token *domain.OneTimeToken) error {
		if err := repos.Users.UpdatePasswordHash(ctx, token.UserID, hash); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrTokenInvalid
			}
			return unavailable(err)
		}
		n, err := repos.Sessions.RevokeByUserID(ctx, token.UserID, domain.RevokeReasonPasswordReset)
		if err != nil {
			return unavailable(err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return err
	}
	observability.Audit(ctx, s.logger, "password_reset_completed", "user_id", record.UserID, "revoked_sessions", revoked)
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, then revokes all sessions and the caller's access
// token.
func (s *AuthService) ChangePassword(ctx context.Context, principal Principal, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return unavailable(err)
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return unavailable(err)
		}
		if _, err := repos.Sessions.RevokeByUserID(ctx, user.ID, domain.RevokeReasonPasswordChange); err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.revokeAccess(ctx, principal, domain.RevokeReasonPasswordChange); err != nil {
		return err
	}
	observability.Audit(ctx, s.logger, "password_changed", "user_id", user.ID)
	return nil
}

// RevokeUserSessions signs a user out of every device on behalf of an
// administrator. Access tokens already issued stay valid until they expire.
func (s *AuthService) RevokeUserSessions(ctx context.Context, actor Principal, userID uint) (int64, error) {
	if _, err := s.CurrentUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.ledger.RevokeAllForUser(ctx, userID, domain.RevokeReasonAdmin)
	if err != nil {
		return 0, err
	}
	observability.Audit(ctx, s.logger, "admin_sessions_revoked", "actor_id", actor.UserID, "user_id", userID, "revoked", n)
	return n, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*UserView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, unavailable(err)
	}
	view := NewUserView(user)
	return &view, nil
}

func (s *AuthService) lookupForMail(ctx context.Context, email, flow string) (*domain.User, bool) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.ErrorContext(ctx, "user lookup failed", "flow", flow, "error", err)
		}
		return nil, false
	}
	if !user.IsActive {
		return nil, false
	}
	return user, true
}

func (s *AuthService) revokeAccess(ctx context.Context, principal Principal, reason string) error {
	return s.revocations.Revoke(ctx, principal.TokenID, principal.UserID, principal.ExpiresAt, reason)
}

func (s *AuthService) sessionResult(user *domain.User, issued *IssuedRefreshToken) (*SessionResult, error) {
	access, claims, err := s.codec.Mint(security.PurposeAccess, strconv.FormatUint(uint64(user.ID), 10), security.TokenAttributes{
		Email:     user.Email,
		Role:      user.Role,
		SessionID: issued.Session.TokenID,
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &SessionResult{
		AccessToken:     access,
		RefreshToken:    issued.Raw,
		TokenType:       "Bearer",
		AccessExpiresAt: claims.ExpiresAt.Time,
		User:            NewUserView(user),
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrServiceUnavailable):
		return "error"
	case errors.Is(err, ErrTokenReused):
		return "reuse_detected"
	default:
		return "rejected"
	}
}

package service

import "context"

// AccessTokenRevocationChecker is consulted by the auth guard for every
// authenticated request.
type AccessTokenRevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*UserView, error)
	VerifyEmail(ctx context.Context, raw string) error
	ResendVerification(ctx context.Context, email string)
	Login(ctx context.Context, email, password string, device Device) (*SessionResult, error)
	Refresh(ctx context.Context, raw string, device Device) (*SessionResult, error)
	LogoutOne(ctx context.Context, principal Principal, rawRefresh string) error
	LogoutAll(ctx context.Context, principal Principal) (int64, error)
	ForgotPassword(ctx context.Context, email string)
	ResetPassword(ctx context.Context, raw, newPassword string) error
	ChangePassword(ctx context.Context, principal Principal, oldPassword, newPassword string) error
	CurrentUser(ctx context.Context, userID uint) (*UserView, error)
	RevokeUserSessions(ctx context.Context, actor Principal, userID uint) (int64, error)
}

type SessionServiceInterface interface {
	ListActiveSessions(ctx context.Context, userID uint, currentTokenID string) ([]SessionView, error)
	ResolveCurrentSessionID(ctx context.Context, userID uint, currentTokenID string) (uint, error)
	RevokeSession(ctx context.Context, userID, sessionID uint) (string, error)
	RevokeOtherSessions(ctx context.Context, userID, currentSessionID uint) (int64, error)
}

var (
	_ AuthServiceInterface         = (*AuthService)(nil)
	_ SessionServiceInterface      = (*SessionService)(nil)
	_ AccessTokenRevocationChecker = (*RevocationService)(nil)
)

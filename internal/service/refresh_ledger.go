package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
)

var errDeviceMismatch = errors.New("refresh token presented from another device")

// Device describes the client presenting a credential.
type Device struct {
	UserAgent string
	IP        string
}

// IssuedRefreshToken carries a raw refresh token and the record storing its
// fingerprint. Raw is never persisted.
type IssuedRefreshToken struct {
	Raw     string
	Session *domain.Session
}

type RefreshLedgerConfig struct {
	Pepper     string
	TTL        time.Duration
	Retention  time.Duration
	BindDevice bool
}

// RefreshLedger issues, rotates and revokes opaque refresh tokens. Tokens of
// one login chain share a family id; replaying a revoked token revokes the
// whole family.
type RefreshLedger struct {
	sessions repository.SessionRepository
	cfg      RefreshLedgerConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewRefreshLedger(sessions repository.SessionRepository, cfg RefreshLedgerConfig, logger *slog.Logger) *RefreshLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshLedger{sessions: sessions, cfg: cfg, logger: logger, now: time.Now}
}

func (l *RefreshLedger) WithClock(now func() time.Time) *RefreshLedger {
	if now != nil {
		l.now = now
	}
	return l
}

// Issue creates a new refresh token for userID. An empty familyID starts a new
// family.
func (l *RefreshLedger) Issue(ctx context.Context, userID uint, device Device, familyID string) (*IssuedRefreshToken, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}
	raw, session, err := l.newRecord(userID, device, familyID, nil, l.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := l.sessions.Create(ctx, session); err != nil {
		return nil, unavailable(err)
	}
	return &IssuedRefreshToken{Raw: raw, Session: session}, nil
}

// ValidateAndRotate exchanges raw for a successor in the same family. Unknown
// tokens are invalid, revoked tokens are treated as reuse, and expired tokens
// are rejected without being revoked.
func (l *RefreshLedger) ValidateAndRotate(ctx context.Context, raw string, device Device) (*IssuedRefreshToken, error) {
	ctx, span := observability.StartSpan(ctx, "refresh_ledger.validate_and_rotate")
	issued, err := l.validateAndRotate(ctx, raw, device)
	observability.EndSpan(span, err)
	return issued, err
}

func (l *RefreshLedger) validateAndRotate(ctx context.Context, raw string, device Device) (*IssuedRefreshToken, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	hash := security.HashRefreshToken(raw, l.cfg.Pepper)
	now := l.now().UTC()

	var successorRaw string
	old, rotated, err := l.sessions.RotateSession(ctx, hash, now, func(old *domain.Session) (*domain.Session, error) {
		if l.cfg.BindDevice && old.UserAgent != device.UserAgent {
			return nil, errDeviceMismatch
		}
		parent := old.TokenID
		nextRaw, next, err := l.newRecord(old.UserID, device, old.FamilyID, &parent, now)
		if err != nil {
			return nil, err
		}
		successorRaw = nextRaw
		return next, nil
	})
	switch {
	case err == nil:
		return &IssuedRefreshToken{Raw: successorRaw, Session: rotated}, nil
	case errors.Is(err, repository.ErrSessionNotFound):
		return nil, ErrTokenInvalid
	case errors.Is(err, repository.ErrSessionExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, repository.ErrSessionRevoked):
		return nil, l.handleReuse(ctx, hash, old)
	case errors.Is(err, errDeviceMismatch):
		if _, revokeErr := l.sessions.RevokeByHash(ctx, hash, domain.RevokeReasonDeviceMismatch); revokeErr != nil {
			return nil, unavailable(revokeErr)
		}
		observability.SecurityEvent(ctx, l.logger, "refresh_device_mismatch", "user_id", old.UserID, "session_id", old.ID)
		return nil, ErrTokenInvalid
	default:
		return nil, unavailable(err)
	}
}

func (l *RefreshLedger) handleReuse(ctx context.Context, hash string, old *domain.Session) error {
	if old == nil {
		return ErrTokenInvalid
	}
	if err := l.sessions.MarkReuseDetectedByHash(ctx, hash); err != nil {
		return unavailable(err)
	}
	revoked, err := l.sessions.RevokeByFamilyID(ctx, old.FamilyID, domain.RevokeReasonReuseDetected)
	if err != nil {
		return unavailable(err)
	}
	observability.RecordRefreshReuseDetected(ctx, revoked)
	observability.SecurityEvent(ctx, l.logger, "refresh_token_reuse_detected",
		"user_id", old.UserID,
		"family_id", old.FamilyID,
		"session_id", old.ID,
		"revoked_sessions", revoked,
	)
	return ErrTokenReused
}

// Revoke revokes the record for raw when it belongs to userID. Unknown,
// foreign or already revoked tokens are not an error and report false.
func (l *RefreshLedger) Revoke(ctx context.Context, userID uint, raw, reason string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	session, err := l.sessions.FindByHash(ctx, security.HashRefreshToken(raw, l.cfg.Pepper))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	if session.UserID != userID {
		observability.SecurityEvent(ctx, l.logger, "refresh_revoke_foreign_token", "user_id", userID, "session_id", session.ID)
		return false, nil
	}
	changed, err := l.sessions.RevokeByIDForUser(ctx, userID, session.ID, reason)
	if err != nil {
		return false, unavailable(err)
	}
	return changed, nil
}

// RevokeByTokenID revokes the active record with tokenID owned by userID.
// A missing or inactive record is not an error.
func (l *RefreshLedger) RevokeByTokenID(ctx context.Context, userID uint, tokenID, reason string) error {
	session, err := l.sessions.FindActiveByTokenIDForUser(ctx, userID, tokenID, l.now())
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return unavailable(err)
	}
	if _, err := l.sessions.RevokeByIDForUser(ctx, userID, session.ID, reason); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAllForUser revokes every active record of userID across all families.
func (l *RefreshLedger) RevokeAllForUser(ctx context.Context, userID uint, reason string) (int64, error) {
	n, err := l.sessions.RevokeByUserID(ctx, userID, reason)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// EnforceLimit revokes the oldest active sessions of userID so that at most
// max remain. max <= 0 disables the limit.
func (l *RefreshLedger) EnforceLimit(ctx context.Context, userID uint, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	active, err := l.sessions.ListActiveByUserID(ctx, userID, l.now())
	if err != nil {
		return 0, unavailable(err)
	}
	revoked := 0
	// active is newest first
	for i := max; i < len(active); i++ {
		changed, err := l.sessions.RevokeByIDForUser(ctx, userID, active[i].ID, domain.RevokeReasonSessionLimit)
		if err != nil {
			return revoked, unavailable(err)
		}
		if changed {
			revoked++
		}
	}
	return revoked, nil
}

// SweepExpired deletes records whose expiry is older than the retention
// window. Rotated rows are kept for that window so replays are still caught.
func (l *RefreshLedger) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := l.now().UTC().Add(-l.cfg.Retention)
	n, err := l.sessions.CleanupExpired(ctx, cutoff)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (l *RefreshLedger) newRecord(userID uint, device Device, familyID string, parent *string, now time.Time) (string, *domain.Session, error) {
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	return raw, &domain.Session{
		UserID:           userID,
		RefreshTokenHash: security.HashRefreshToken(raw, l.cfg.Pepper),
		TokenID:          uuid.NewString(),
		FamilyID:         familyID,
		ParentTokenID:    parent,
		UserAgent:        device.UserAgent,
		IP:               device.IP,
		ExpiresAt:        now.Add(l.cfg.TTL),
	}, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	IsCurrent bool      `json:"is_current"`
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, now: time.Now}
}

// ListActiveSessions lists the user's live refresh sessions. currentTokenID is
// the sid claim of the caller's access token.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID uint, currentTokenID string) ([]SessionView, error) {
	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, userID, s.now())
	if err != nil {
		return nil, unavailable(err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			UserAgent: session.UserAgent,
			IP:        session.IP,
			IsCurrent: currentTokenID != "" && session.TokenID == currentTokenID,
		})
	}
	return views, nil
}

func (s *SessionService) ResolveCurrentSessionID(ctx context.Context, userID uint, currentTokenID string) (uint, error) {
	if currentTokenID == "" {
		return 0, ErrSessionNotFound
	}
	session, err := s.sessionRepo.FindActiveByTokenIDForUser(ctx, userID, currentTokenID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, unavailable(err)
	}
	return session.ID, nil
}

// RevokeSession revokes one of the user's sessions. It reports
// "already_revoked" instead of failing when the session was revoked before.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID uint) (string, error) {
	changed, err := s.sessionRepo.RevokeByIDForUser(ctx, userID, sessionID, domain.RevokeReasonUserRevoked)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", ErrSessionNotFound
		}
		return "", unavailable(err)
	}
	if !changed {
		return "already_revoked", nil
	}
	return "revoked", nil
}

func (s *SessionService) RevokeOtherSessions(ctx context.Context, userID, currentSessionID uint) (int64, error) {
	n, err := s.sessionRepo.RevokeOthersByUser(ctx, userID, currentSessionID, domain.RevokeReasonUserRevoked)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

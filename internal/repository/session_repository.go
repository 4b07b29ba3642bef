package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionExpired  = errors.New("session expired")
)

// SuccessorFunc builds the session that replaces old during a rotation. An
// error aborts the rotation and rolls the transaction back.
type SuccessorFunc func(old *domain.Session) (*domain.Session, error)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByHash(ctx context.Context, hash string) (*domain.Session, error)
	FindActiveByTokenIDForUser(ctx context.Context, userID uint, tokenID string, now time.Time) (*domain.Session, error)
	FindByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error)
	RotateSession(ctx context.Context, oldHash string, now time.Time, successor SuccessorFunc) (old *domain.Session, rotated *domain.Session, err error)
	MarkReuseDetectedByHash(ctx context.Context, hash string) error
	RevokeByHash(ctx context.Context, hash, reason string) (bool, error)
	RevokeByIDForUser(ctx context.Context, userID, sessionID uint, reason string) (bool, error)
	RevokeOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string) (int64, error)
	RevokeByFamilyID(ctx context.Context, familyID, reason string) (int64, error)
	RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error)
	CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	recordOutcome(ctx, "session", "create", err)
	return err
}

func (r *GormSessionRepository) FindByHash(ctx context.Context, hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("refresh_token_hash = ?", hash).First(&s).Error
	if err != nil {
		err = notFound(err, ErrSessionNotFound)
		recordOutcome(ctx, "session", "find_by_hash", err)
		return nil, err
	}
	recordOutcome(ctx, "session", "find_by_hash", nil)
	return &s, nil
}

func (r *GormSessionRepository) FindActiveByTokenIDForUser(ctx context.Context, userID uint, tokenID string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND token_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, tokenID, now.UTC()).
		First(&s).Error
	if err != nil {
		err = notFound(err, ErrSessionNotFound)
		recordOutcome(ctx, "session", "find_active_by_token_id_for_user", err)
		return nil, err
	}
	recordOutcome(ctx, "session", "find_active_by_token_id_for_user", nil)
	return &s, nil
}

func (r *GormSessionRepository) FindByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, sessionID).First(&s).Error
	if err != nil {
		err = notFound(err, ErrSessionNotFound)
		recordOutcome(ctx, "session", "find_by_id_for_user", err)
		return nil, err
	}
	recordOutcome(ctx, "session", "find_by_id_for_user", nil)
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	recordOutcome(ctx, "session", "list_active_by_user_id", err)
	return sessions, err
}

// RotateSession revokes the session identified by oldHash and inserts its
// successor in a single transaction. The revocation is conditional on the row
// still being active, so two concurrent rotations of one token cannot both win:
// the loser gets ErrSessionRevoked.
func (r *GormSessionRepository) RotateSession(ctx context.Context, oldHash string, now time.Time, successor SuccessorFunc) (*domain.Session, *domain.Session, error) {
	var (
		old     domain.Session
		rotated *domain.Session
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("refresh_token_hash = ?", oldHash).
			First(&old).Error
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		if old.IsRevoked() {
			return ErrSessionRevoked
		}
		if old.IsExpired(now) {
			return ErrSessionExpired
		}
		next, err := successor(&old)
		if err != nil {
			return err
		}

		revokedAt := now.UTC()
		reason := domain.RevokeReasonRotated
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND revoked_at IS NULL", old.ID).
			Updates(map[string]any{"revoked_at": revokedAt, "revoked_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrSessionRevoked
		}
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		old.RevokedAt = &revokedAt
		old.RevokedReason = &reason
		rotated = next
		return nil
	})
	recordOutcome(ctx, "session", "rotate_session", err)
	if err != nil {
		if old.ID == 0 {
			return nil, nil, err
		}
		return &old, nil, err
	}
	return &old, rotated, nil
}

func (r *GormSessionRepository) MarkReuseDetectedByHash(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("refresh_token_hash = ?", hash).
		Updates(map[string]any{"reuse_detected_at": now}).Error
	recordOutcome(ctx, "session", "mark_reuse_detected_by_hash", err)
	return err
}

func (r *GormSessionRepository) RevokeByHash(ctx context.Context, hash, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("refresh_token_hash = ? AND revoked_at IS NULL", hash).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	recordOutcome(ctx, "session", "revoke_by_hash", res.Error)
	return res.RowsAffected > 0, res.Error
}

func (r *GormSessionRepository) RevokeByIDForUser(ctx context.Context, userID, sessionID uint, reason string) (bool, error) {
	session, err := r.FindByIDForUser(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	if session.IsRevoked() {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id = ? AND revoked_at IS NULL", userID, sessionID).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	recordOutcome(ctx, "session", "revoke_by_id_for_user", res.Error)
	return res.RowsAffected > 0, res.Error
}

func (r *GormSessionRepository) RevokeOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id <> ? AND revoked_at IS NULL", userID, keepSessionID).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	recordOutcome(ctx, "session", "revoke_others_by_user", res.Error)
	return res.RowsAffected, res.Error
}

func (r *GormSessionRepository) RevokeByFamilyID(ctx context.Context, familyID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	recordOutcome(ctx, "session", "revoke_by_family_id", res.Error)
	return res.RowsAffected, res.Error
}

func (r *GormSessionRepository) RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	recordOutcome(ctx, "session", "revoke_by_user_id", res.Error)
	return res.RowsAffected, res.Error
}

// CleanupExpired deletes sessions that expired at or before cutoff. Callers
// pass a cutoff in the past so revoked rows outlive their expiry long enough
// to catch late replays.
func (r *GormSessionRepository) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", cutoff.UTC()).Delete(&domain.Session{})
	recordOutcome(ctx, "session", "cleanup_expired", res.Error)
	return res.RowsAffected, res.Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func recordOutcome(ctx context.Context, repo, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrOneTimeTokenNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrOneTimeTokenConsumed):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, repo, op, outcome)
}

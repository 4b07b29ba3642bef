package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOneTimeTokenNotFound = errors.New("one-time token not found")
	ErrOneTimeTokenConsumed = errors.New("one-time token already used")
)

type OneTimeTokenRepository interface {
	Create(ctx context.Context, t *domain.OneTimeToken) error
	FindByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (*domain.OneTimeToken, error)
	DeleteUnusedForUser(ctx context.Context, userID uint, purpose domain.TokenPurpose) (int64, error)
	MarkUsed(ctx context.Context, id uint, at time.Time) error
	CleanupExpired(ctx context.Context, now, usedBefore time.Time) (int64, error)
}

type GormOneTimeTokenRepository struct{ db *gorm.DB }

func NewOneTimeTokenRepository(db *gorm.DB) OneTimeTokenRepository {
	return &GormOneTimeTokenRepository{db: db}
}

func (r *GormOneTimeTokenRepository) Create(ctx context.Context, t *domain.OneTimeToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	recordOutcome(ctx, "one_time_token", "create", err)
	return err
}

// FindByHash locks the row when the dialect supports it so that a validate
// followed by MarkUsed in the same transaction cannot interleave with another.
func (r *GormOneTimeTokenRepository) FindByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (*domain.OneTimeToken, error) {
	var t domain.OneTimeToken
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("purpose = ? AND token_hash = ?", purpose, hash).
		First(&t).Error
	if err != nil {
		err = notFound(err, ErrOneTimeTokenNotFound)
		recordOutcome(ctx, "one_time_token", "find_by_hash", err)
		return nil, err
	}
	recordOutcome(ctx, "one_time_token", "find_by_hash", nil)
	return &t, nil
}

func (r *GormOneTimeTokenRepository) DeleteUnusedForUser(ctx context.Context, userID uint, purpose domain.TokenPurpose) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
		Delete(&domain.OneTimeToken{})
	recordOutcome(ctx, "one_time_token", "delete_unused_for_user", res.Error)
	return res.RowsAffected, res.Error
}

// MarkUsed is the Active -> Used transition. It only succeeds once per row.
func (r *GormOneTimeTokenRepository) MarkUsed(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.OneTimeToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at.UTC())
	err := res.Error
	if err == nil && res.RowsAffected != 1 {
		err = ErrOneTimeTokenConsumed
	}
	recordOutcome(ctx, "one_time_token", "mark_used", err)
	return err
}

func (r *GormOneTimeTokenRepository) CleanupExpired(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? OR (used_at IS NOT NULL AND used_at <= ?)", now.UTC(), usedBefore.UTC()).
		Delete(&domain.OneTimeToken{})
	recordOutcome(ctx, "one_time_token", "cleanup_expired", res.Error)
	return res.RowsAffected, res.Error
}

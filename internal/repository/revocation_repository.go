package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccessTokenRevocationRepository interface {
	Create(ctx context.Context, rev *domain.AccessTokenRevocation) error
	ExistsByHash(ctx context.Context, hash string, now time.Time) (bool, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormAccessTokenRevocationRepository struct{ db *gorm.DB }

func NewAccessTokenRevocationRepository(db *gorm.DB) AccessTokenRevocationRepository {
	return &GormAccessTokenRevocationRepository{db: db}
}

// Create is idempotent: revoking an already revoked token is a no-op.
func (r *GormAccessTokenRevocationRepository) Create(ctx context.Context, rev *domain.AccessTokenRevocation) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token_hash"}}, DoNothing: true}).
		Create(rev).Error
	recordOutcome(ctx, "access_token_revocation", "create", err)
	return err
}

func (r *GormAccessTokenRevocationRepository) ExistsByHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AccessTokenRevocation{}).
		Where("token_hash = ? AND expires_at > ?", hash, now.UTC()).
		Count(&count).Error
	recordOutcome(ctx, "access_token_revocation", "exists_by_hash", err)
	return count > 0, err
}

func (r *GormAccessTokenRevocationRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.AccessTokenRevocation{})
	recordOutcome(ctx, "access_token_revocation", "cleanup_expired", res.Error)
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	MarkEmailVerified(ctx context.Context, id uint) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	SetActive(ctx context.Context, id uint, active bool) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

// NormalizeEmail case-folds and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		err = notFound(err, ErrUserNotFound)
		recordOutcome(ctx, "user", "find_by_id", err)
		return nil, err
	}
	recordOutcome(ctx, "user", "find_by_id", nil)
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if err != nil {
		err = notFound(err, ErrUserNotFound)
		recordOutcome(ctx, "user", "find_by_email", err)
		return nil, err
	}
	recordOutcome(ctx, "user", "find_by_email", nil)
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil && isUniqueConstraintError(err) {
		err = ErrDuplicateEmail
	}
	recordOutcome(ctx, "user", "create", err)
	return err
}

func (r *GormUserRepository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return r.updateColumns(ctx, "update_password_hash", id, map[string]any{"password_hash": hash})
}

func (r *GormUserRepository) MarkEmailVerified(ctx context.Context, id uint) error {
	return r.updateColumns(ctx, "mark_email_verified", id, map[string]any{"email_verified": true})
}

func (r *GormUserRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, "touch_last_login", id, map[string]any{"last_login_at": at.UTC()})
}

func (r *GormUserRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.updateColumns(ctx, "set_active", id, map[string]any{"is_active": active})
}

func (r *GormUserRepository) updateColumns(ctx context.Context, op string, id uint, columns map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(columns)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	recordOutcome(ctx, "user", op, err)
	return err
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}

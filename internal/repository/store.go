package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups repositories bound to the same connection or transaction.
type Repositories struct {
	Users         UserRepository
	Sessions      SessionRepository
	OneTimeTokens OneTimeTokenRepository
	Revocations   AccessTokenRevocationRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Sessions:      NewSessionRepository(db),
		OneTimeTokens: NewOneTimeTokenRepository(db),
		Revocations:   NewAccessTokenRevocationRepository(db),
	}
}

// TxManager runs fn against repositories bound to one transaction. fn must
// only use the repositories it is handed.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type GormTxManager struct{ db *gorm.DB }

func NewTxManager(db *gorm.DB) TxManager { return &GormTxManager{db: db} }

func (m *GormTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})
}

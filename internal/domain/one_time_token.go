package domain

import "time"

type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken persists the hash of an out-of-band token. It is active while
// UsedAt is nil and never becomes active again once used.
type OneTimeToken struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    uint         `gorm:"index;not null" json:"user_id"`
	Purpose   TokenPurpose `gorm:"size:32;index;not null" json:"purpose"`
	TokenHash string       `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time    `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time   `gorm:"index" json:"used_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (t *OneTimeToken) IsUsed() bool { return t.UsedAt != nil }

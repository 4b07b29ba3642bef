package domain

import "time"

// AccessTokenRevocation marks an access token as unusable before its natural
// expiry. ExpiresAt mirrors the token's exp so the row can be pruned with it.
type AccessTokenRevocation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TokenHash string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Reason    string    `gorm:"size:64" json:"reason"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

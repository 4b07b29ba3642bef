package domain

import "time"

// Session is one issued refresh token. Rows are kept after revocation so a
// replayed fingerprint can still be recognised as reuse.
type Session struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"index;not null" json:"user_id"`
	RefreshTokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	TokenID          string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	FamilyID         string     `gorm:"size:64;index;not null" json:"-"`
	ParentTokenID    *string    `gorm:"size:64;index" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IP               string     `gorm:"size:64" json:"ip"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt        *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason    *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	ReuseDetectedAt  *time.Time `gorm:"index" json:"reuse_detected_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (s *Session) IsRevoked() bool { return s.RevokedAt != nil }

// IsExpired reports whether the session is past its expiry. The boundary is
// exclusive: a session expiring exactly at now is expired.
func (s *Session) IsExpired(now time.Time) bool { return !s.ExpiresAt.After(now) }

const (
	RevokeReasonRotated        = "rotated"
	RevokeReasonReuseDetected  = "reuse_detected"
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonPasswordReset  = "password_reset"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonSessionLimit   = "session_limit"
	RevokeReasonDeviceMismatch = "device_mismatch"
	RevokeReasonAccountState   = "account_state"
	RevokeReasonUserRevoked    = "user_session_revoked"
	RevokeReasonAdmin          = "admin_revoked"
)

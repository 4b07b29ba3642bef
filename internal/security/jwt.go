package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose scopes a signed token to one use. Every purpose signs with its own
// secret so a leaked secret only forges tokens of that purpose.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrUnknownPurpose        = errors.New("unknown token purpose")
)

type Claims struct {
	Purpose   Purpose `json:"purpose"`
	Email     string  `json:"email,omitempty"`
	Role      string  `json:"role,omitempty"`
	SessionID string  `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenAttributes are the optional claims carried next to the subject.
type TokenAttributes struct {
	Email     string
	Role      string
	SessionID string
}

type PurposeSecrets struct {
	Access            string
	EmailVerification string
	PasswordReset     string
}

type JWTManager struct {
	issuer   string
	audience string
	secrets  map[Purpose][]byte
	now      func() time.Time
}

func NewJWTManager(issuer, audience string, secrets PurposeSecrets) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secrets: map[Purpose][]byte{
			PurposeAccess:            []byte(secrets.Access),
			PurposeEmailVerification: []byte(secrets.EmailVerification),
			PurposePasswordReset:     []byte(secrets.PasswordReset),
		},
		now: time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *JWTManager) Mint(purpose Purpose, subject string, attrs TokenAttributes, ttl time.Duration) (string, *Claims, error) {
	secret, err := m.secret(purpose)
	if err != nil {
		return "", nil, err
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("mint %s token: ttl must be positive", purpose)
	}
	now := m.now()
	claims := &Claims{
		Purpose:   purpose,
		Email:     attrs.Email,
		Role:      attrs.Role,
		SessionID: attrs.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, claims, nil
}

// Verify checks signature, issuer, audience, purpose and expiry. It never
// consults a store.
func (m *JWTManager) Verify(purpose Purpose, raw string) (*Claims, error) {
	secret, err := m.secret(purpose)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !tok.Valid {
		return nil, ErrTokenSignatureInvalid
	}
	if claims.Purpose != purpose {
		return nil, ErrTokenSignatureInvalid
	}
	return claims, nil
}

func (m *JWTManager) secret(purpose Purpose) ([]byte, error) {
	secret, ok := m.secrets[purpose]
	if !ok || len(secret) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPurpose, purpose)
	}
	return secret, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}

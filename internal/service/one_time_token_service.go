package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
)

// RedeemFunc applies the side effect of a one-time token. It runs in the same
// transaction that consumes the token and must only use repos.
type RedeemFunc func(ctx context.Context, repos repository.Repositories, token *domain.OneTimeToken) error

// OneTimeTokenService issues and redeems single-use tokens for one purpose.
// The raw token is a signed, expiring JWT; only its hash is stored.
type OneTimeTokenService struct {
	purpose domain.TokenPurpose
	codec   *security.JWTManager
	tokens  repository.OneTimeTokenRepository
	tx      repository.TxManager
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewEmailVerificationService(codec *security.JWTManager, tokens repository.OneTimeTokenRepository, tx repository.TxManager, ttl time.Duration, logger *slog.Logger) *OneTimeTokenService {
	return newOneTimeTokenService(domain.PurposeEmailVerification, codec, tokens, tx, ttl, logger)
}

func NewPasswordResetService(codec *security.JWTManager, tokens repository.OneTimeTokenRepository, tx repository.TxManager, ttl time.Duration, logger *slog.Logger) *OneTimeTokenService {
	return newOneTimeTokenService(domain.PurposePasswordReset, codec, tokens, tx, ttl, logger)
}

func newOneTimeTokenService(purpose domain.TokenPurpose, codec *security.JWTManager, tokens repository.OneTimeTokenRepository, tx repository.TxManager, ttl time.Duration, logger *slog.Logger) *OneTimeTokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OneTimeTokenService{
		purpose: purpose,
		codec:   codec,
		tokens:  tokens,
		tx:      tx,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *OneTimeTokenService) WithClock(now func() time.Time) *OneTimeTokenService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *OneTimeTokenService) Purpose() domain.TokenPurpose { return s.purpose }

// Create issues a token for userID. Unused tokens previously issued to the
// same user for the same purpose are deleted.
func (s *OneTimeTokenService) Create(ctx context.Context, userID uint) (string, error) {
	return s.create(ctx, s.tokens, userID)
}

// CreateInTx is Create bound to an open transaction.
func (s *OneTimeTokenService) CreateInTx(ctx context.Context, repos repository.Repositories, userID uint) (string, error) {
	return s.create(ctx, repos.OneTimeTokens, userID)
}

func (s *OneTimeTokenService) create(ctx context.Context, tokens repository.OneTimeTokenRepository, userID uint) (string, error) {
	raw, claims, err := s.codec.Mint(s.codecPurpose(), strconv.FormatUint(uint64(userID), 10), security.TokenAttributes{}, s.ttl)
	if err != nil {
		return "", err
	}
	if _, err := tokens.DeleteUnusedForUser(ctx, userID, s.purpose); err != nil {
		return "", unavailable(err)
	}
	record := &domain.OneTimeToken{
		UserID:    userID,
		Purpose:   s.purpose,
		TokenHash: security.HashToken(raw),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if err := tokens.Create(ctx, record); err != nil {
		return "", unavailable(err)
	}
	observability.RecordOneTimeToken(ctx, string(s.purpose), "issued")
	return raw, nil
}

// Validate returns the active record for raw without consuming it.
func (s *OneTimeTokenService) Validate(ctx context.Context, raw string) (*domain.OneTimeToken, error) {
	return s.validate(ctx, s.tokens, raw)
}

func (s *OneTimeTokenService) validate(ctx context.Context, tokens repository.OneTimeTokenRepository, raw string) (*domain.OneTimeToken, error) {
	claims, err := s.codec.Verify(s.codecPurpose(), raw)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			s.record(ctx, "expired")
			return nil, ErrTokenExpired
		}
		s.record(ctx, "invalid")
		return nil, ErrTokenInvalid
	}
	record, err := tokens.FindByHash(ctx, s.purpose, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrOneTimeTokenNotFound) {
			s.record(ctx, "invalid")
			return nil, ErrTokenInvalid
		}
		return nil, unavailable(err)
	}
	if strconv.FormatUint(uint64(record.UserID), 10) != claims.Subject {
		s.record(ctx, "invalid")
		return nil, ErrTokenInvalid
	}
	if record.IsUsed() {
		s.record(ctx, "already_used")
		return nil, ErrTokenAlreadyUsed
	}
	if !record.ExpiresAt.After(s.now()) {
		s.record(ctx, "expired")
		return nil, ErrTokenExpired
	}
	return record, nil
}

// Consume moves record from active to used. A second call for the same record
// fails with ErrTokenAlreadyUsed.
func (s *OneTimeTokenService) Consume(ctx context.Context, record *domain.OneTimeToken) error {
	return s.consume(ctx, s.tokens, record)
}

func (s *OneTimeTokenService) consume(ctx context.Context, tokens repository.OneTimeTokenRepository, record *domain.OneTimeToken) error {
	err := tokens.MarkUsed(ctx, record.ID, s.now())
	if errors.Is(err, repository.ErrOneTimeTokenConsumed) {
		s.record(ctx, "already_used")
		return ErrTokenAlreadyUsed
	}
	if err != nil {
		return unavailable(err)
	}
	s.record(ctx, "consumed")
	return nil
}

// Redeem validates raw, applies fn and consumes the token in one transaction.
// If fn fails the token stays active. Other unused tokens of the same user and
// purpose are discarded on success.
func (s *OneTimeTokenService) Redeem(ctx context.Context, raw string, fn RedeemFunc) (*domain.OneTimeToken, error) {
	var redeemed *domain.OneTimeToken
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		record, err := s.validate(ctx, repos.OneTimeTokens, raw)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(ctx, repos, record); err != nil {
				return err
			}
		}
		if err := s.consume(ctx, repos.OneTimeTokens, record); err != nil {
			return err
		}
		if _, err := repos.OneTimeTokens.DeleteUnusedForUser(ctx, record.UserID, s.purpose); err != nil {
			return unavailable(err)
		}
		redeemed = record
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return redeemed, nil
}

func (s *OneTimeTokenService) codecPurpose() security.Purpose {
	if s.purpose == domain.PurposePasswordReset {
		return security.PurposePasswordReset
	}
	return security.PurposeEmailVerification
}

func (s *OneTimeTokenService) record(ctx context.Context, event string) {
	observability.RecordOneTimeToken(ctx, string(s.purpose), event)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrAccountDisabled,
		ErrEmailNotVerified,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrTokenReused,
		ErrTokenAlreadyUsed,
		ErrConflict,
		ErrServiceUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

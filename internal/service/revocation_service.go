package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
)

// RevocationService keeps the list of access tokens invalidated before their
// expiry. Entries are keyed by a hash of the token's jti. The database is the
// source of truth; the cache only short-circuits positive lookups.
type RevocationService struct {
	repo   repository.AccessTokenRevocationRepository
	cache  RevocationCacheStore
	logger *slog.Logger
	now    func() time.Time
}

func NewRevocationService(repo repository.AccessTokenRevocationRepository, cache RevocationCacheStore, logger *slog.Logger) *RevocationService {
	if cache == nil {
		cache = NewNoopRevocationCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationService{repo: repo, cache: cache, logger: logger, now: time.Now}
}

func (s *RevocationService) WithClock(now func() time.Time) *RevocationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Revoke adds the token identified by jti. Tokens that already expired are
// skipped.
func (s *RevocationService) Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	hash := security.HashToken(jti)
	if err := s.repo.Create(ctx, &domain.AccessTokenRevocation{
		TokenHash: hash,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt.UTC(),
	}); err != nil {
		return unavailable(err)
	}
	if err := s.cache.Add(ctx, hash, ttl); err != nil {
		s.logger.WarnContext(ctx, "revocation cache write failed", "error", err)
	}
	return nil
}

// IsRevoked reports whether the token identified by jti was revoked. Store
// failures surface as ErrServiceUnavailable so callers can fail closed.
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	hash := security.HashToken(jti)
	hit, err := s.cache.Contains(ctx, hash)
	if err != nil {
		s.logger.WarnContext(ctx, "revocation cache read failed", "error", err)
	}
	if hit {
		observability.RecordAccessTokenValidation(ctx, "revoked", "cache")
		return true, nil
	}
	revoked, err := s.repo.ExistsByHash(ctx, hash, s.now())
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "error", "db")
		return false, unavailable(err)
	}
	if revoked {
		observability.RecordAccessTokenValidation(ctx, "revoked", "db")
		return true, nil
	}
	observability.RecordAccessTokenValidation(ctx, "valid", "db")
	return false, nil
}

func (s *RevocationService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.CleanupExpired(ctx, s.now())
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

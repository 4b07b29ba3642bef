package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
)

func TestUserRepositoryEmailIsCaseFoldedAndUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	u := &domain.User{Email: "  Shopper@Example.COM ", PasswordHash: "x", Role: domain.RoleCustomer, IsActive: true}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "shopper@example.com" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}
	found, err := repo.FindByEmail(ctx, "SHOPPER@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != u.ID {
		t.Fatalf("expected same user, got %d", found.ID)
	}

	dup := &domain.User{Email: "shopper@EXAMPLE.com", PasswordHash: "y", Role: domain.RoleCustomer, IsActive: true}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestUserRepositoryColumnUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	u := &domain.User{Email: "a@example.com", PasswordHash: "x", Role: domain.RoleCustomer, IsActive: true}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkEmailVerified(ctx, u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if err := repo.TouchLastLogin(ctx, u.ID, time.Now()); err != nil {
		t.Fatalf("touch last login: %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, u.ID, "new-hash"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	got, err := repo.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.EmailVerified || got.LastLoginAt == nil || got.PasswordHash != "new-hash" {
		t.Fatalf("unexpected user state: %+v", got)
	}
	if err := repo.MarkEmailVerified(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAccessTokenRevocationRepositoryIdempotentAndExpiring(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessTokenRevocationRepository(newTestDB(t))
	now := time.Now().UTC()
	rev := &domain.AccessTokenRevocation{TokenHash: "jti-hash", UserID: 1, Reason: "logout", ExpiresAt: now.Add(time.Minute)}
	if err := repo.Create(ctx, rev); err != nil {
		t.Fatalf("create: %v", err)
	}
	again := &domain.AccessTokenRevocation{TokenHash: "jti-hash", UserID: 1, Reason: "logout", ExpiresAt: now.Add(time.Minute)}
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("duplicate create should be a no-op: %v", err)
	}
	ok, err := repo.ExistsByHash(ctx, "jti-hash", now)
	if err != nil || !ok {
		t.Fatalf("expected revocation present, ok=%v err=%v", ok, err)
	}
	deleted, err := repo.CleanupExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}

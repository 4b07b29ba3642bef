package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestJWTManager(now func() time.Time) *JWTManager {
	return NewJWTManager("iss", "aud", PurposeSecrets{
		Access:            "access-abcdefghijklmnopqrstuvwxyz123456",
		EmailVerification: "verify-abcdefghijklmnopqrstuvwxyz123456",
		PasswordReset:     "reset-abcdefghijklmnopqrstuvwxyz1234567",
	}).WithClock(now)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestJWTManagerMintVerifyRoundTrip(t *testing.T) {
	m := newTestJWTManager(time.Now)
	raw, minted, err := m.Mint(PurposeAccess, "42", TokenAttributes{Email: "a@example.com", Role: "customer", SessionID: "sid-1"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := m.Verify(PurposeAccess, raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "42" || claims.Email != "a@example.com" || claims.Role != "customer" || claims.SessionID != "sid-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" || claims.ID != minted.ID {
		t.Fatalf("expected jti to round trip, minted=%q parsed=%q", minted.ID, claims.ID)
	}
}

func TestJWTManagerRejectsCrossPurposeTokens(t *testing.T) {
	m := newTestJWTManager(time.Now)
	raw, _, err := m.Mint(PurposePasswordReset, "42", TokenAttributes{}, 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	for _, p := range []Purpose{PurposeAccess, PurposeEmailVerification} {
		if _, err := m.Verify(p, raw); !errors.Is(err, ErrTokenSignatureInvalid) {
			t.Fatalf("verify as %s: expected signature invalid, got %v", p, err)
		}
	}
}

func TestJWTManagerRejectsPurposeClaimMismatchWithSharedSecret(t *testing.T) {
	shared := "shared-abcdefghijklmnopqrstuvwxyz123456"
	m := NewJWTManager("iss", "aud", PurposeSecrets{Access: shared, EmailVerification: shared, PasswordReset: shared})
	raw, _, err := m.Mint(PurposeEmailVerification, "7", TokenAttributes{}, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Verify(PurposeAccess, raw); !errors.Is(err, ErrTokenSignatureInvalid) {
		t.Fatalf("expected purpose mismatch to fail, got %v", err)
	}
}

func TestJWTManagerExpiryBoundaryIsExclusive(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	now := issued
	m := newTestJWTManager(func() time.Time { return now })
	raw, _, err := m.Mint(PurposeAccess, "1", TokenAttributes{}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	now = issued.Add(time.Minute - time.Second)
	if _, err := m.Verify(PurposeAccess, raw); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	now = issued.Add(time.Minute)
	if _, err := m.Verify(PurposeAccess, raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected token expired at exp, got %v", err)
	}
}

func TestJWTManagerMalformedAndTampered(t *testing.T) {
	m := newTestJWTManager(time.Now)
	if _, err := m.Verify(PurposeAccess, ""); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed for empty token, got %v", err)
	}
	if _, err := m.Verify(PurposeAccess, "not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}

	raw, _, err := m.Mint(PurposeAccess, "1", TokenAttributes{}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := m.Verify(PurposeAccess, tampered); !errors.Is(err, ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestJWTManagerUnknownPurpose(t *testing.T) {
	m := newTestJWTManager(fixedClock(time.Now()))
	if _, _, err := m.Mint(Purpose("refresh"), "1", TokenAttributes{}, time.Minute); !errors.Is(err, ErrUnknownPurpose) {
		t.Fatalf("expected unknown purpose, got %v", err)
	}
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware admits requests carrying a valid, unrevoked bearer access
// token. A revocation lookup failure rejects the request with 503.
func AuthMiddleware(jwtMgr *security.JWTManager, revocations service.AccessTokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Unauthorized(w, r)
				return
			}
			claims, err := jwtMgr.Verify(security.PurposeAccess, raw)
			if err != nil {
				outcome := "invalid"
				if errors.Is(err, security.ErrTokenExpired) {
					outcome = "expired"
				}
				observability.RecordAccessTokenValidation(r.Context(), outcome, "bearer")
				response.Unauthorized(w, r)
				return
			}
			if revocations != nil {
				revoked, err := revocations.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					logger.ErrorContext(r.Context(), "access token revocation lookup failed", "error", err)
					response.ServiceUnavailable(w, r)
					return
				}
				if revoked {
					response.Unauthorized(w, r)
					return
				}
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

package middleware

import (
	"net/http"
	"slices"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
)

// RequireRole rejects callers whose access token role is not in roles. It must
// run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, r)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

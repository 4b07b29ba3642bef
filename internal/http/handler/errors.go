package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"
)

// writeAuthError maps a session or credential failure. Every authentication
// failure shares one 401 body so callers cannot tell the causes apart.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrServiceUnavailable):
		logger.ErrorContext(r.Context(), "auth request failed", "error", err)
		response.ServiceUnavailable(w, r)
	case errors.Is(err, service.ErrConflict):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "resource already exists", nil)
	case errors.Is(err, security.ErrPasswordTooLong):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at most 72 bytes", nil)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrTokenReused),
		errors.Is(err, service.ErrTokenAlreadyUsed):
		response.Unauthorized(w, r)
	default:
		logger.ErrorContext(r.Context(), "unexpected auth error", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

// writeOneTimeTokenError maps failures of verification and reset links. Bad,
// expired and used tokens share one 400 body.
func writeOneTimeTokenError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenAlreadyUsed):
		response.Error(w, r, http.StatusBadRequest, "INVALID_TOKEN", "token is invalid or expired", nil)
	default:
		writeAuthError(w, r, logger, err)
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, message string) {
	response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

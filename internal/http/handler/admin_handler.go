package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"
)

type AdminHandler struct {
	auth   service.AuthServiceInterface
	logger *slog.Logger
}

func NewAdminHandler(auth service.AuthServiceInterface, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{auth: auth, logger: logger}
}

func (h *AdminHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID == 0 {
		writeValidationError(w, r, "invalid user id")
		return
	}
	n, err := h.auth.RevokeUserSessions(r.Context(), actor, uint(userID))
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user_id": userID, "revoked_count": n})
}

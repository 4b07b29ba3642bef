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

type UserHandler struct {
	auth     service.AuthServiceInterface
	sessions service.SessionServiceInterface
	logger   *slog.Logger
}

func NewUserHandler(auth service.AuthServiceInterface, sessions service.SessionServiceInterface, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{auth: auth, sessions: sessions, logger: logger}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListActiveSessions(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil || sessionID == 0 {
		writeValidationError(w, r, "invalid session id")
		return
	}
	status, err := h.sessions.RevokeSession(r.Context(), p.UserID, uint(sessionID))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
			return
		}
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"session_id": sessionID, "status": status})
}

func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	currentID, err := h.sessions.ResolveCurrentSessionID(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Unauthorized(w, r)
			return
		}
		writeAuthError(w, r, h.logger, err)
		return
	}
	n, err := h.sessions.RevokeOtherSessions(r.Context(), p.UserID, currentID)
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"current_session_id": currentID, "revoked_count": n})
}

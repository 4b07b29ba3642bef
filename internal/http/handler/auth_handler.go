package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"
)

const (
	verificationSentMessage = "if the account exists and is unverified, a verification email has been sent"
	resetSentMessage        = "if the account exists, a password reset email has been sent"
)

type AuthHandler struct {
	auth   service.AuthServiceInterface
	logger *slog.Logger
}

func NewAuthHandler(auth service.AuthServiceInterface, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if !validEmail(req.Email) {
		writeValidationError(w, r, "a valid email is required")
		return
	}
	if msg := validatePassword(req.Password); msg != "" {
		writeValidationError(w, r, msg)
		return
	}
	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "check your email to verify your account",
	})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeValidationError(w, r, "token is required")
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), token); err != nil {
		writeOneTimeTokenError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "verified"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if validEmail(req.Email) {
		h.auth.ResendVerification(r.Context(), req.Email)
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": verificationSentMessage})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeValidationError(w, r, "email and password are required")
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, deviceFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeValidationError(w, r, "refresh_token is required")
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, deviceFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeValidationError(w, r, err.Error())
		return
	}
	if err := h.auth.LogoutOne(r.Context(), principal, req.RefreshToken); err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	n, err := h.auth.LogoutAll(r.Context(), principal)
	if err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "logged_out", "revoked_sessions": n})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if validEmail(req.Email) {
		h.auth.ForgotPassword(r.Context(), req.Email)
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": resetSentMessage})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if req.Token == "" {
		writeValidationError(w, r, "token is required")
		return
	}
	if msg := validatePassword(req.NewPassword); msg != "" {
		writeValidationError(w, r, msg)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeOneTimeTokenError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}
	if msg := validatePassword(req.NewPassword); msg != "" {
		writeValidationError(w, r, msg)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), principal, req.OldPassword, req.NewPassword); err != nil {
		writeAuthError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}

func principalFromRequest(w http.ResponseWriter, r *http.Request) (service.Principal, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return service.Principal{}, false
	}
	p, err := service.PrincipalFromClaims(claims)
	if err != nil {
		response.Unauthorized(w, r)
		return service.Principal{}, false
	}
	return p, true
}

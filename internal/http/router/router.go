package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/commerce-auth-service/internal/domain"
	"github.com/sandeepkv93/commerce-auth-service/internal/http/handler"
	"github.com/sandeepkv93/commerce-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AdminHandler   *handler.AdminHandler
	HealthHandler  *handler.HealthHandler
	JWTManager     *security.JWTManager
	Revocations    service.AccessTokenRevocationChecker
	Logger         *slog.Logger
	BodyLimitBytes int64
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(bodyLimit))

	authenticated := middleware.AuthMiddleware(dep.JWTManager, dep.Revocations, dep.Logger)

	r.Get("/health/live", dep.HealthHandler.Live)
	r.Get("/health/ready", dep.HealthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", dep.AuthHandler.Register)
			r.Get("/verify-email", dep.AuthHandler.VerifyEmail)
			r.Post("/resend-verification", dep.AuthHandler.ResendVerification)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/forgot-password", dep.AuthHandler.ForgotPassword)
			r.Post("/reset-password", dep.AuthHandler.ResetPassword)
			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Post("/logout", dep.AuthHandler.Logout)
				r.Post("/logout-all", dep.AuthHandler.LogoutAll)
				r.Post("/change-password", dep.AuthHandler.ChangePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
			r.Delete("/me/sessions/{session_id}", dep.UserHandler.RevokeSession)
			r.Post("/me/sessions/revoke-others", dep.UserHandler.RevokeOtherSessions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/users/{id}/revoke-sessions", dep.AdminHandler.RevokeUserSessions)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/commerce-auth-service/internal/app"
	"github.com/sandeepkv93/commerce-auth-service/internal/config"
	"github.com/sandeepkv93/commerce-auth-service/internal/database"
	"github.com/sandeepkv93/commerce-auth-service/internal/http/handler"
	"github.com/sandeepkv93/commerce-auth-service/internal/http/router"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/security"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const readinessTimeout = 2 * time.Second

// oneTimeTokenServices groups the two purpose-bound services, which share a type.
type oneTimeTokenServices struct {
	Verification *service.OneTimeTokenService
	Resets       *service.OneTimeTokenService
}

func provideDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := database.Migrate(ctx, db, cfg.DatabaseDriver, logger); err != nil {
		cleanup()
		return nil, nil, err
	}
	return db, cleanup, nil
}

// provideRedisClient returns nil when Redis is disabled.
func provideRedisClient(ctx context.Context, cfg *config.Config) (redis.UniversalClient, func(), error) {
	if !cfg.RedisEnabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func provideRevocationCache(cfg *config.Config, client redis.UniversalClient) service.RevocationCacheStore {
	if client == nil {
		return service.NewInMemoryRevocationCacheStore()
	}
	return service.NewRedisRevocationCacheStore(client, cfg.RedisPrefix)
}

func provideRepositories(db *gorm.DB) repository.Repositories {
	return repository.NewRepositories(db)
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, security.PurposeSecrets{
		Access:            cfg.JWTAccessSecret,
		EmailVerification: cfg.JWTVerificationSecret,
		PasswordReset:     cfg.JWTPasswordResetSecret,
	})
}

func provideRefreshLedger(sessions repository.SessionRepository, cfg *config.Config, logger *slog.Logger) *service.RefreshLedger {
	return service.NewRefreshLedger(sessions, service.RefreshLedgerConfig{
		Pepper:     cfg.RefreshTokenPepper,
		TTL:        cfg.RefreshTokenTTL,
		Retention:  cfg.RefreshReuseRetention,
		BindDevice: cfg.RefreshBindDevice,
	}, logger)
}

func provideOneTimeTokenServices(codec *security.JWTManager, tokens repository.OneTimeTokenRepository, tx repository.TxManager, cfg *config.Config, logger *slog.Logger) oneTimeTokenServices {
	return oneTimeTokenServices{
		Verification: service.NewEmailVerificationService(codec, tokens, tx, cfg.EmailVerificationTTL, logger),
		Resets:       service.NewPasswordResetService(codec, tokens, tx, cfg.PasswordResetTTL, logger),
	}
}

func provideRevocationService(repo repository.AccessTokenRevocationRepository, cache service.RevocationCacheStore, logger *slog.Logger) *service.RevocationService {
	return service.NewRevocationService(repo, cache, logger)
}

func provideMailer(logger *slog.Logger) service.Mailer {
	return service.NewLogMailer(logger)
}

func provideLinkBuilder(cfg *config.Config) service.LinkBuilder {
	return service.NewLinkBuilder(cfg.PublicBaseURL)
}

func provideAuthService(
	users repository.UserRepository,
	tx repository.TxManager,
	hasher *security.PasswordHasher,
	codec *security.JWTManager,
	ledger *service.RefreshLedger,
	oneTime oneTimeTokenServices,
	revocations *service.RevocationService,
	mailer service.Mailer,
	links service.LinkBuilder,
	cfg *config.Config,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(users, tx, hasher, codec, ledger, oneTime.Verification, oneTime.Resets, revocations, mailer, links, service.AuthConfig{
		AccessTokenTTL:       cfg.AccessTokenTTL,
		RequireEmailVerified: cfg.RequireEmailVerified,
		MaxActiveSessions:    cfg.MaxActiveSessions,
	}, logger)
}

func provideSweeper(ledger *service.RefreshLedger, tokens repository.OneTimeTokenRepository, revocations *service.RevocationService, cfg *config.Config, logger *slog.Logger) *service.Sweeper {
	return service.NewSweeper(ledger, tokens, revocations, cfg.SweepInterval, cfg.RefreshReuseRetention, logger)
}

func provideHealthHandler(db *gorm.DB, client redis.UniversalClient) *handler.HealthHandler {
	probes := []handler.Probe{{
		Name:  "database",
		Check: func(ctx context.Context) error { return database.Ping(ctx, db) },
	}}
	if client != nil {
		probes = append(probes, handler.Probe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return handler.NewHealthHandler(readinessTimeout, probes...)
}

func provideAuthHandler(auth *service.AuthService, logger *slog.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, logger)
}

func provideUserHandler(auth *service.AuthService, sessions *service.SessionService, logger *slog.Logger) *handler.UserHandler {
	return handler.NewUserHandler(auth, sessions, logger)
}

func provideAdminHandler(auth *service.AuthService, logger *slog.Logger) *handler.AdminHandler {
	return handler.NewAdminHandler(auth, logger)
}

func provideRouter(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	jwtMgr *security.JWTManager,
	revocations *service.RevocationService,
	logger *slog.Logger,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:    authHandler,
		UserHandler:    userHandler,
		AdminHandler:   adminHandler,
		HealthHandler:  healthHandler,
		JWTManager:     jwtMgr,
		Revocations:    revocations,
		Logger:         logger,
		EnableOTelHTTP: cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideApp(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, sweeper *service.Sweeper) *app.App {
	return app.New(cfg, logger, server, runtime, sweeper)
}

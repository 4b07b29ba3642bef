//go:build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/sandeepkv93/commerce-auth-service/internal/app"
	"github.com/sandeepkv93/commerce-auth-service/internal/config"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
	"github.com/sandeepkv93/commerce-auth-service/internal/service"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var storeSet = wire.NewSet(
	provideDatabase,
	provideRedisClient,
	provideRevocationCache,
	provideRepositories,
	wire.FieldsOf(new(repository.Repositories), "Users", "Sessions", "OneTimeTokens", "Revocations"),
	repository.NewTxManager,
)

var serviceSet = wire.NewSet(
	providePasswordHasher,
	provideJWTManager,
	provideRefreshLedger,
	provideOneTimeTokenServices,
	provideRevocationService,
	provideMailer,
	provideLinkBuilder,
	provideAuthService,
	service.NewSessionService,
	provideSweeper,
)

var httpSet = wire.NewSet(
	provideHealthHandler,
	provideAuthHandler,
	provideUserHandler,
	provideAdminHandler,
	provideRouter,
	provideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, func(), error) {
	wire.Build(storeSet, serviceSet, httpSet, provideObservability, provideApp)
	return nil, nil, nil
}

func InitializeSweeper(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.Sweeper, func(), error) {
	wire.Build(
		provideDatabase,
		provideRedisClient,
		provideRevocationCache,
		provideRepositories,
		wire.FieldsOf(new(repository.Repositories), "Sessions", "OneTimeTokens", "Revocations"),
		provideRefreshLedger,
		provideRevocationService,
		provideSweeper,
	)
	return nil, nil, nil
}

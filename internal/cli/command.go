package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/commerce-auth-service/internal/config"
	"github.com/sandeepkv93/commerce-auth-service/internal/database"
	"github.com/sandeepkv93/commerce-auth-service/internal/di"
	"github.com/sandeepkv93/commerce-auth-service/internal/observability"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type options struct {
	envFiles []string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "commerce-auth",
		Short:         "Authentication and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "env files to load before reading the environment")
	cmd.AddCommand(newServeCommand(opts), newMigrateCommand(opts), newSweepCommand(opts))
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, lp, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			// The app's observability runtime owns lp and flushes it on shutdown.
			a, cleanup, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				flushLogs(lp)
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, lp, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer flushLogs(lp)

			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer func() { _ = sqlDB.Close() }()
			}
			if err := database.Migrate(ctx, db, cfg.DatabaseDriver, logger); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

func newSweepCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired refresh sessions, one-time tokens and access revocations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, lp, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer flushLogs(lp)

			sweeper, cleanup, err := di.InitializeSweeper(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize sweeper: %w", err)
			}
			defer cleanup()
			res, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(map[string]int64{
				"refresh_sessions":   res.RefreshSessions,
				"one_time_tokens":    res.OneTimeTokens,
				"access_revocations": res.AccessRevocations,
			})
		},
	}
}

// bootstrap loads configuration and builds the process logger. lp is nil
// unless OTLP log export is enabled.
func bootstrap(ctx context.Context, opts *options, logOut io.Writer) (*config.Config, *slog.Logger, *sdklog.LoggerProvider, error) {
	cfg, err := config.Load(opts.envFiles...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, lp, err := observability.NewLogger(ctx, cfg, logOut)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, lp, nil
}

func flushLogs(lp *sdklog.LoggerProvider) {
	if lp != nil {
		_ = lp.Shutdown(context.Background())
	}
}

package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/commerce-auth-service/internal/observability"
	"github.com/sandeepkv93/commerce-auth-service/internal/repository"
)

// SweepResult counts rows removed by one sweep.
type SweepResult struct {
	RefreshSessions   int64
	OneTimeTokens     int64
	AccessRevocations int64
}

// Sweeper periodically removes rows that can no longer affect any decision.
// It is the only background task of the service.
type Sweeper struct {
	ledger        *RefreshLedger
	oneTimeTokens repository.OneTimeTokenRepository
	revocations   *RevocationService
	interval      time.Duration
	usedRetention time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewSweeper(ledger *RefreshLedger, oneTimeTokens repository.OneTimeTokenRepository, revocations *RevocationService, interval, usedRetention time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		ledger:        ledger,
		oneTimeTokens: oneTimeTokens,
		revocations:   revocations,
		interval:      interval,
		usedRetention: usedRetention,
		logger:        logger,
		now:           time.Now,
	}
}

// SweepOnce runs the three cleanups concurrently and returns the first error.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.ledger.SweepExpired(gctx)
		res.RefreshSessions = n
		return err
	})
	g.Go(func() error {
		now := s.now()
		n, err := s.oneTimeTokens.CleanupExpired(gctx, now, now.Add(-s.usedRetention))
		res.OneTimeTokens = n
		if err != nil {
			return unavailable(err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.revocations.SweepExpired(gctx)
		res.AccessRevocations = n
		return err
	})
	err := g.Wait()
	observability.RecordSweepDeleted(ctx, "refresh_sessions", res.RefreshSessions)
	observability.RecordSweepDeleted(ctx, "one_time_tokens", res.OneTimeTokens)
	observability.RecordSweepDeleted(ctx, "access_revocations", res.AccessRevocations)
	return res, err
}

// Run sweeps every interval until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			s.logger.InfoContext(ctx, "sweep completed",
				"refresh_sessions", res.RefreshSessions,
				"one_time_tokens", res.OneTimeTokens,
				"access_revocations", res.AccessRevocations,
			)
		}
	}
}

package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/commerce-auth-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// shutdownFunc flushes and stops one telemetry pipeline.
type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

// Runtime owns the telemetry pipelines started for the process. Pipelines
// stop in reverse start order, so the log pipeline stops last.
type Runtime struct {
	pipelines []shutdownFunc
}

// InitRuntime starts metrics and tracing. lp, the log pipeline built with the
// process logger, is adopted so it is flushed last.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	r := &Runtime{}
	if lp != nil {
		r.add("logs", lp.Shutdown)
	}
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r.add("metrics", mp.Shutdown)
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	r.add("traces", tp.Shutdown)
	return r, nil
}

func (r *Runtime) add(name string, fn func(context.Context) error) {
	r.pipelines = append(r.pipelines, shutdownFunc{name: name, fn: fn})
}

// Shutdown stops every pipeline and joins their errors. A nil Runtime is a
// no-op.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.pipelines) - 1; i >= 0; i-- {
		p := r.pipelines[i]
		if err := p.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}

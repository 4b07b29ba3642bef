package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// loadCounter is resolved on first use so that it binds to whichever meter
// provider is global at that time.
var loadCounter = sync.OnceValue(func() metric.Int64Counter {
	counter, err := otel.Meter("commerce-auth-service/config").Int64Counter(
		"config.validation.events",
		metric.WithDescription("Configuration load attempts by outcome"),
	)
	if err != nil {
		return nil
	}
	return counter
})

func recordConfigValidationEvent(ctx context.Context, profile, outcome, errorClass string) {
	counter := loadCounter()
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

func normalizeConfigProfile(profile string) string {
	if v := strings.ToLower(strings.TrimSpace(profile)); v != "" {
		return v
	}
	return "unknown"
}

func classifyConfigLoadError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidConfig):
		return "validation"
	case errors.Is(err, ErrConfigParse):
		return "parse"
	case errors.Is(err, errEnvFile):
		return "env_file"
	default:
		return "load"
	}
}

package observability

import (
	"context"
	"log/slog"
)

// Audit records a security-relevant event. Token values must never be passed
// as attributes.
func Audit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []any{"event", event}
	base = append(base, attrs...)
	logger.InfoContext(ctx, "audit", base...)
}

// SecurityEvent is an audit entry logged at warn level, e.g. refresh token reuse.
func SecurityEvent(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []any{"event", event, "security", true}
	base = append(base, attrs...)
	logger.WarnContext(ctx, "security_event", base...)
}

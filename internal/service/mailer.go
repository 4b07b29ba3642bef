package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Mailer delivers out-of-band links. Implementations must not retain the raw
// token beyond delivery.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, link string) error
	SendPasswordResetEmail(ctx context.Context, to, link string) error
}

// LogMailer writes links to the log instead of sending mail. It is meant for
// local development where no mail relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, to, link string) error {
	m.logger.InfoContext(ctx, "verification email", "to", to, "link", link)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to, link string) error {
	m.logger.InfoContext(ctx, "password reset email", "to", to, "link", link)
	return nil
}

// LinkBuilder renders the URLs embedded in outgoing mail.
type LinkBuilder struct {
	baseURL string
}

func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

func (b LinkBuilder) VerifyEmail(raw string) string {
	return b.baseURL + "/api/v1/auth/verify-email?token=" + url.QueryEscape(raw)
}

func (b LinkBuilder) ResetPassword(raw string) string {
	return b.baseURL + "/reset-password?token=" + url.QueryEscape(raw)
}

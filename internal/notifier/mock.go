package notifier

import (
	"context"
	"log/slog"
)

// LogSender is a sender implementation that logs messages and always
// succeeds. It backs both channels in development environments where no
// SMTP server or SMS gateway is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Name returns the name of this sender.
func (s *LogSender) Name() string {
	return "log"
}

// SendPasswordResetLink logs the reset link instead of emailing it.
func (s *LogSender) SendPasswordResetLink(ctx context.Context, to, link string) error {
	s.logger.InfoContext(ctx, "log sender: password reset email",
		slog.String("to", to),
		slog.String("link", link),
	)
	return nil
}

// SendOTP logs the code instead of sending an SMS.
func (s *LogSender) SendOTP(ctx context.Context, phoneNumber, code string) error {
	s.logger.InfoContext(ctx, "log sender: otp sms",
		slog.String("phone_number", phoneNumber),
		slog.String("code", code),
	)
	return nil
}

package transport

import (
	"context"
	"log/slog"

	"github.com/shaiso/Herald/internal/telemetry"
)

// LogSender пишет письмо в лог и считает его доставленным.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender создаёт LogSender. nil logger заменяется на slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send логирует письмо. Логгер из контекста (с полями уведомления)
// предпочтительнее собственного.
func (s *LogSender) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	telemetry.FromContext(ctx, s.logger).InfoContext(ctx, "email sent to log",
		"to", email.To,
		"subject", email.Subject,
		"tag", email.Tag,
		"html_bytes", len(email.HTMLBody),
	)
	return nil
}

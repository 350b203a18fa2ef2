package transport

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig — настройки PostmarkSender.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
}

// PostmarkSender отправляет письма через транзакционный API Postmark.
type PostmarkSender struct {
	client *postmark.Client
	config PostmarkConfig
}

// NewPostmarkSender создаёт PostmarkSender.
// ServerToken и корректный адрес From обязательны.
func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("%w: sender email %q is not a valid address", ErrInvalidConfig, cfg.From)
	}
	if cfg.ReplyTo != "" {
		if _, err := mail.ParseAddress(cfg.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: reply-to %q is not a valid address", ErrInvalidConfig, cfg.ReplyTo)
		}
	}

	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// Send отправляет письмо. Ответ с ненулевым ErrorCode считается ошибкой.
func (s *PostmarkSender) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.config.From,
		ReplyTo:    s.config.ReplyTo,
		To:         email.To,
		Subject:    email.Subject,
		Tag:        email.Tag,
		HTMLBody:   email.HTMLBody,
		TextBody:   email.TextBody,
		TrackOpens: true,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

// VerifyConnection проверяет токен сервера запросом текущего сервера.
func (s *PostmarkSender) VerifyConnection(ctx context.Context) bool {
	_, err := s.client.GetCurrentServer(ctx)
	return err == nil
}

var (
	_ Sender   = (*PostmarkSender)(nil)
	_ Verifier = (*PostmarkSender)(nil)
)

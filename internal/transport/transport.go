// Package transport отправляет готовые письма через конкретного провайдера.
//
// Оркестратор зависит только от интерфейса Sender, поэтому адаптеры
// взаимозаменяемы:
//   - PostmarkSender — транзакционный API Postmark (production)
//   - FileSender     — сохраняет письма на диск (локальная разработка)
//   - LogSender      — пишет письма в лог
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSendFailed — провайдер не принял письмо.
	ErrSendFailed = errors.New("email send failed")

	// ErrInvalidEmail — письмо не прошло базовую проверку.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidConfig — адаптер сконфигурирован неверно.
	ErrInvalidConfig = errors.New("invalid transport config")
)

// Email — одно письмо для отправки.
type Email struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`

	// TextBody — необязательная text/plain версия.
	TextBody string `json:"text_body,omitempty"`

	// Tag — метка для аналитики провайдера (например, код шаблона).
	Tag string `json:"tag,omitempty"`
}

// Validate проверяет минимальные требования к письму.
func (e Email) Validate() error {
	if e.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidEmail)
	}
	if e.HTMLBody == "" && e.TextBody == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidEmail)
	}
	return nil
}

// Sender — отправка одного письма за вызов, без батчей.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Verifier — необязательная проверка соединения с провайдером.
type Verifier interface {
	VerifyConnection(ctx context.Context) bool
}

// SenderFunc адаптирует функцию к Sender.
type SenderFunc func(ctx context.Context, email Email) error

// Send вызывает f.
func (f SenderFunc) Send(ctx context.Context, email Email) error {
	return f(ctx, email)
}

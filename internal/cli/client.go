package cli

import (
	"context"

	"github.com/shaiso/Herald/internal/domain"
)

// StatusReader читает статус доставки (status.Store).
type StatusReader interface {
	Get(ctx context.Context, notificationID string) (*domain.DeliveryStatus, error)
}

// TemplateInvalidator сбрасывает шаблон из кэша (templates.Cache).
type TemplateInvalidator interface {
	Invalidate(ctx context.Context, code string) error
}

// Publisher публикует JSON в exchange (mq.Publisher).
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any, priority uint8) error
}

// Соединения с Redis и RabbitMQ открываются лениво: команда status не
// должна требовать брокера, команда send не должна требовать Redis.
type (
	StatusFn    func() (StatusReader, error)
	TemplatesFn func() (TemplateInvalidator, error)
	PublisherFn func() (Publisher, error)
	OutputFn    func() *Output
)

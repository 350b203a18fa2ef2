package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение и ждёт подтверждения брокера.
//
// Пустые MessageId, Timestamp, ContentType и DeliveryMode заполняются
// значениями по умолчанию (uuid, now, application/json, persistent).
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	msg = withDefaults(msg, time.Now())

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			exchange,   // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		// nil, если канал не в режиме confirms
		if confirm != nil {
			acked, err := confirm.WaitContext(ctx)
			if err != nil {
				return fmt.Errorf("publish to %s/%s: wait confirm: %w", exchange, routingKey, err)
			}
			if !acked {
				return fmt.Errorf("publish to %s/%s: nacked by broker", exchange, routingKey)
			}
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.MessageId,
		)

		return nil
	})
}

// PublishJSON сериализует payload и публикует его.
func (p *Publisher) PublishJSON(ctx context.Context, exchange, routingKey string, payload any, priority uint8) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.Publish(ctx, exchange, routingKey, amqp.Publishing{
		Body:     body,
		Priority: priority,
	})
}

func withDefaults(msg amqp.Publishing, now time.Time) amqp.Publishing {
	if msg.MessageId == "" {
		msg.MessageId = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}
	if msg.DeliveryMode == 0 {
		// сообщение переживёт рестарт RabbitMQ
		msg.DeliveryMode = amqp.Persistent
	}
	return msg
}

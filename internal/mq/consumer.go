package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownGrace — время на завершение обработки при остановке.
const DefaultShutdownGrace = 30 * time.Second

var errDeliveriesClosed = errors.New("deliveries channel closed")

// Handler — функция обработки сообщения.
//
// Handler сам решает судьбу сообщения (Ack/Nack). Контекст handler'а
// не отменяется при остановке consumer'а сразу: сначала даётся
// grace period на завершение.
type Handler func(ctx context.Context, d *Delivery)

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — удалить из очереди.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer потребляет сообщения из очереди RabbitMQ.
//
// До Prefetch сообщений обрабатываются параллельно.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	queue   string
	tag     string
	handler Handler

	prefetch int
	grace    time.Duration

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — лимит неподтверждённых сообщений и параллельных обработчиков.
	Prefetch int

	// ShutdownGrace — сколько ждать обработчики при остановке.
	ShutdownGrace time.Duration

	// Tag — consumer tag (по умолчанию генерируется).
	Tag string
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	tag := cfg.Tag
	if tag == "" {
		tag = "herald-" + uuid.New().String()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		tag:      tag,
		handler:  cfg.Handler,
		prefetch: prefetch,
		grace:    grace,
	}
}

// Start запускает потребление и блокируется до отмены ctx или Stop.
//
// При остановке подписка отменяется, обработчики получают grace period,
// после чего их контексты отменяются. Возвращает nil при штатной остановке.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	// Контекст обработчиков живёт дольше ctx: отменяется после grace period
	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	g := &errgroup.Group{}
	g.SetLimit(c.prefetch)

	err := c.consume(ctx, g, handlerCtx)

	c.cancelSubscription()
	c.drain(g, cancelHandlers)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context, g *errgroup.Group, handlerCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "prefetch", c.prefetch, "tag", c.tag)

		if err := c.dispatch(ctx, g, handlerCtx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Done():
		return ErrClosed
	case <-c.conn.ReconnectNotify():
		c.logger.Info("reconnected, restarting consumer")
		return nil
	}
}

// setupConsume применяет prefetch и подписывается на очередь.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil || ch.IsClosed() {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		c.tag,   // consumer tag
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// dispatch раздаёт сообщения обработчикам; блокируется, если заняты все слоты.
func (c *Consumer) dispatch(ctx context.Context, g *errgroup.Group, handlerCtx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}

			d := &Delivery{Raw: raw}
			g.Go(func() error {
				c.handler(handlerCtx, d)
				return nil
			})
		}
	}
}

// cancelSubscription останавливает приём новых сообщений.
func (c *Consumer) cancelSubscription() {
	if c.conn == nil {
		return
	}

	ch := c.conn.Channel()
	if ch == nil || ch.IsClosed() {
		return
	}

	if err := ch.Cancel(c.tag, false); err != nil {
		c.logger.Warn("failed to cancel consumer", "tag", c.tag, "error", err)
	}
}

// drain ждёт обработчики grace period, затем отменяет их контексты.
func (c *Consumer) drain(g *errgroup.Group, cancelHandlers context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("consumer stopped, in-flight deliveries finished")
		return
	case <-time.After(c.grace):
	}

	c.logger.Warn("shutdown grace period exceeded, cancelling in-flight deliveries", "grace", c.grace)
	cancelHandlers()
	<-done
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

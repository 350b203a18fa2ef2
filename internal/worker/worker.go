package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/orchestrator"
	"github.com/shaiso/Herald/internal/retry"
	"github.com/shaiso/Herald/internal/telemetry"
)

// Default configuration values.
const (
	defaultPrefetch = 10
)

// Deliverer — операции Orchestrator, нужные consumer'у.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.NotificationMessage) orchestrator.Result
	MarkFailed(ctx context.Context, notificationID, reason string) error
}

// Publisher — публикация копий в retry и dead-letter exchanges.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Worker — consumer очереди email-уведомлений.
//
// Worker:
//   - Получает сообщения из очереди (до Prefetch параллельно)
//   - Валидирует их и передаёт Orchestrator
//   - Подтверждает успешные (ack)
//   - Повторяет неудачные через retry-очереди с TTL
//   - Отправляет в dead-letter некорректные и исчерпавшие попытки
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	orch      Deliverer
	publisher Publisher
	conn      *mq.Connection
	topology  mq.Topology

	// Consumer
	consumer *mq.Consumer

	// Configuration
	maxRetries                 int
	prefetch                   int
	shutdownGrace              time.Duration
	deadLetterInvalidRecipient bool

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Orchestrator Deliverer

	// MQ
	Publisher Publisher
	Conn      *mq.Connection
	Topology  mq.Topology

	// MaxRetries — число повторов до dead-letter (default: 5).
	MaxRetries int

	// Prefetch — лимит неподтверждённых сообщений (default: 10).
	Prefetch int

	// ShutdownGrace — время на завершение обработки при остановке (default: 30s).
	ShutdownGrace time.Duration

	// DeadLetterInvalidRecipient — отправлять сообщения без адреса
	// сразу в dead-letter, не тратя повторы.
	DeadLetterInvalidRecipient bool

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxRetries
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	shutdownGrace := cfg.ShutdownGrace
	if shutdownGrace <= 0 {
		shutdownGrace = mq.DefaultShutdownGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		orch:                       cfg.Orchestrator,
		publisher:                  cfg.Publisher,
		conn:                       cfg.Conn,
		topology:                   cfg.Topology,
		maxRetries:                 maxRetries,
		prefetch:                   prefetch,
		shutdownGrace:              shutdownGrace,
		deadLetterInvalidRecipient: cfg.DeadLetterInvalidRecipient,
		logger:                     telemetry.WithQueue(logger, cfg.Topology.Queue),
		metrics:                    cfg.Metrics,
	}
}

// Start запускает consumer основной очереди.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"prefetch", w.prefetch,
		"max_retries", w.maxRetries,
		"shutdown_grace", w.shutdownGrace,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:         w.topology.Queue,
		Handler:       w.handleDelivery,
		Prefetch:      w.prefetch,
		ShutdownGrace: w.shutdownGrace,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения обработки (не дольше grace period).
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

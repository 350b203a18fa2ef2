package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/orchestrator"
	"github.com/shaiso/Herald/internal/retry"
	"github.com/shaiso/Herald/internal/telemetry"
)

// Заголовки копий, публикуемых consumer'ом.
// Счётчик попыток пишется как int64: int32 обрезал бы большие значения.
const (
	HeaderRetryCount  = "x-retry-count"
	HeaderLastError   = "x-last-error"
	HeaderDeathReason = "x-death-reason"
)

// handleDelivery обрабатывает одно сообщение и выбирает его судьбу:
// ack, retry, dead-letter или requeue.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) {
	w.metrics.InFlight(1)
	defer w.metrics.InFlight(-1)

	// 1. Парсим и валидируем
	msg, err := decodeMessage(d.Body())
	if err != nil {
		w.logger.Error("rejecting malformed message",
			"message_id", d.Raw.MessageId,
			"error", err,
		)
		w.rejectMalformed(ctx, d, err)
		return
	}

	logger := telemetry.WithNotification(w.logger, msg.NotificationID, msg.CorrelationID).
		With("retry_count", msg.Metadata.RetryCount)

	logger.Debug("received notification", "template_code", msg.TemplateCode)

	// 2. Доставляем
	res := w.orch.Deliver(ctx, msg)
	if res.StatusErr != nil {
		logger.Warn("delivery status not recorded", "error", res.StatusErr)
	}

	// 3. Успех
	if res.OK() {
		w.ack(logger, d)
		return
	}

	// 4. Постоянная ошибка — без повторов
	if w.isPermanent(res.Err) {
		logger.Warn("permanent delivery failure, dead-lettering", "error", res.Err)
		w.deadLetter(ctx, logger, d, msg.Metadata.RetryCount, res.Err.Error())
		return
	}

	// 5. Повтор
	if retry.ShouldRetry(msg.Metadata.RetryCount, w.maxRetries) {
		w.scheduleRetry(ctx, logger, d, msg, res.Err)
		return
	}

	// 6. Попытки исчерпаны
	reason := fmt.Sprintf("%s after %d retries: %v", ErrRetryExhausted, msg.Metadata.RetryCount, res.Err)
	logger.Error("retries exhausted, dead-lettering", "error", res.Err)

	if err := w.orch.MarkFailed(ctx, msg.NotificationID, reason); err != nil {
		logger.Error("failed to mark notification as failed", "error", err)
	}

	w.deadLetter(ctx, logger, d, msg.Metadata.RetryCount, reason)
}

// isPermanent решает, минуя ли повторы.
func (w *Worker) isPermanent(err error) bool {
	if errors.Is(err, orchestrator.ErrInvalidRecipient) {
		return w.deadLetterInvalidRecipient
	}
	return orchestrator.IsPermanent(err)
}

// scheduleRetry публикует копию с retry_count+1 в очередь повторов
// с задержкой BackoffDelay(retry_count) и удаляет оригинал.
func (w *Worker) scheduleRetry(ctx context.Context, logger *slog.Logger, d *mq.Delivery, msg *domain.NotificationMessage, cause error) {
	delay := retry.BackoffDelay(msg.Metadata.RetryCount)
	next := msg.NextAttempt()

	body, err := json.Marshal(next)
	if err != nil {
		// Сообщение только что распарсено из JSON
		logger.Error("failed to encode retry copy", "error", err)
		w.requeue(logger, d)
		return
	}

	pub := amqp.Publishing{
		Body:          body,
		CorrelationId: msg.CorrelationID,
		Priority:      uint8(msg.Priority),
		Headers: amqp.Table{
			HeaderRetryCount: int64(next.Metadata.RetryCount),
			HeaderLastError:  cause.Error(),
		},
	}

	exchange, key := w.topology.RetryExchange(), w.topology.RetryRoutingKey(delay)
	if err := w.publisher.Publish(ctx, exchange, key, pub); err != nil {
		logger.Error("failed to publish retry copy", "error", fmt.Errorf("%w: %v", ErrRepublish, err))
		w.requeue(logger, d)
		return
	}

	if err := d.Nack(false); err != nil {
		logger.Error("failed to nack original after retry publish", "error", err)
	}

	w.metrics.Message(telemetry.DispositionRetry)
	logger.Info("delivery scheduled for retry",
		"next_retry_count", next.Metadata.RetryCount,
		"delay", delay,
		"error", cause,
	)
}

// deadLetter публикует исходное тело в dead-letter exchange и удаляет оригинал.
func (w *Worker) deadLetter(ctx context.Context, logger *slog.Logger, d *mq.Delivery, retryCount int, reason string) {
	if err := w.publishDeadLetter(ctx, d, retryCount, reason); err != nil {
		logger.Error("failed to publish to dead-letter exchange", "error", err)
		w.requeue(logger, d)
		return
	}

	if err := d.Nack(false); err != nil {
		logger.Error("failed to nack dead-lettered message", "error", err)
	}
	w.metrics.Message(telemetry.DispositionDeadLetter)
}

// rejectMalformed отправляет некорректное сообщение в dead-letter.
// Такое сообщение никогда не возвращается в очередь.
func (w *Worker) rejectMalformed(ctx context.Context, d *mq.Delivery, cause error) {
	if err := w.publishDeadLetter(ctx, d, 0, cause.Error()); err != nil {
		w.logger.Error("failed to publish malformed message to dead-letter exchange",
			"message_id", d.Raw.MessageId,
			"error", err,
		)
	}

	if err := d.Nack(false); err != nil {
		w.logger.Error("failed to nack malformed message", "error", err)
	}
	w.metrics.Message(telemetry.DispositionMalformed)
}

func (w *Worker) publishDeadLetter(ctx context.Context, d *mq.Delivery, retryCount int, reason string) error {
	pub := amqp.Publishing{
		Body:          d.Body(),
		ContentType:   d.Raw.ContentType,
		CorrelationId: d.Raw.CorrelationId,
		Priority:      d.Raw.Priority,
		Headers: amqp.Table{
			HeaderRetryCount:  int64(retryCount),
			HeaderDeathReason: reason,
		},
	}

	if err := w.publisher.Publish(ctx, w.topology.DeadLetterExchange(), w.topology.RoutingKey, pub); err != nil {
		return fmt.Errorf("%w: %v", ErrRepublish, err)
	}
	return nil
}

func (w *Worker) ack(logger *slog.Logger, d *mq.Delivery) {
	if err := d.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
		return
	}
	w.metrics.Message(telemetry.DispositionAck)
}

// requeue возвращает оригинал в очередь, чтобы не потерять сообщение.
func (w *Worker) requeue(logger *slog.Logger, d *mq.Delivery) {
	if err := d.Nack(true); err != nil {
		logger.Error("failed to requeue message", "error", err)
		return
	}
	w.metrics.Message(telemetry.DispositionRequeue)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/render"
	"github.com/shaiso/Herald/internal/telemetry"
	"github.com/shaiso/Herald/internal/templates"
	"github.com/shaiso/Herald/internal/transport"
)

const tracerName = "github.com/shaiso/Herald/internal/orchestrator"

// TemplateResolver — разрешение шаблона по коду (templates.Cache).
type TemplateResolver interface {
	Get(ctx context.Context, code string) (*domain.ResolvedTemplate, error)
}

// StatusWriter — запись статуса доставки (status.Store).
type StatusWriter interface {
	Put(ctx context.Context, notificationID string, status domain.Status, errText string) error
}

// Result — исход Deliver.
type Result struct {
	// Status — записанный (или предназначенный к записи) статус.
	Status domain.Status

	// Err — классифицированная ошибка доставки; nil при успехе.
	Err error

	// StatusErr — ошибка записи статуса. Сообщается, но не меняет решение.
	StatusErr error
}

// OK возвращает true, если доставка успешна (включая skipped).
func (r Result) OK() bool {
	return r.Err == nil
}

// Orchestrator доставляет одно уведомление.
//
// Безопасен для конкурентного использования: собственного изменяемого
// состояния нет, зависимости должны быть потокобезопасными.
type Orchestrator struct {
	templates TemplateResolver
	transport transport.Sender
	status    StatusWriter

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Config — конфигурация Orchestrator.
type Config struct {
	Templates TemplateResolver
	Transport transport.Sender
	Status    StatusWriter

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Tracer (опционально; если nil — глобальный TracerProvider)
	Tracer trace.Tracer
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Orchestrator{
		templates: cfg.Templates,
		transport: cfg.Transport,
		status:    cfg.Status,
		logger:    logger,
		metrics:   cfg.Metrics,
		tracer:    tracer,
	}
}

// Deliver обрабатывает одно сообщение и записывает ровно один статус.
func (o *Orchestrator) Deliver(ctx context.Context, msg *domain.NotificationMessage) (res Result) {
	ctx, span := o.tracer.Start(ctx, "notification.deliver", trace.WithAttributes(
		attribute.String("notification.id", msg.NotificationID),
		attribute.String("notification.correlation_id", msg.CorrelationID),
		attribute.String("notification.template_code", msg.TemplateCode),
		attribute.Int("notification.retry_count", msg.Metadata.RetryCount),
	))
	defer func() {
		span.SetAttributes(attribute.String("notification.status", string(res.Status)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	logger := telemetry.WithNotification(o.logger, msg.NotificationID, msg.CorrelationID)
	ctx = telemetry.WithLogger(ctx, logger)

	// 1. Пользователь отключил email
	if !msg.EmailEnabled() {
		logger.Info("email disabled for user, skipping")
		return o.finish(ctx, logger, msg.NotificationID, domain.StatusSkipped, nil, "")
	}

	// 2. Адрес получателя
	to := msg.RecipientEmail()
	if to == "" {
		const reason = "recipient email address is missing"
		logger.Warn(reason)
		return o.finish(ctx, logger, msg.NotificationID, domain.StatusFailed, ErrInvalidRecipient, reason)
	}

	// 3. Шаблон
	tmpl, err := o.templates.Get(ctx, msg.TemplateCode)
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			reason := "template not found: " + msg.TemplateCode
			logger.Error(reason)
			return o.finish(ctx, logger, msg.NotificationID, domain.StatusFailed,
				fmt.Errorf("%w: %s", ErrTemplateNotFound, msg.TemplateCode), reason)
		}

		reason := fmt.Sprintf("template lookup failed: %s: %v", msg.TemplateCode, err)
		logger.Error("template lookup failed", "template_code", msg.TemplateCode, "error", err)
		return o.finish(ctx, logger, msg.NotificationID, domain.StatusFailed,
			fmt.Errorf("%w: %s: %v", ErrTemplateLookup, msg.TemplateCode, err), reason)
	}

	// 4. Заполнение
	subject := render.Fill(tmpl.Subject, msg.Variables)
	body := render.Fill(tmpl.Body, msg.Variables)

	// 5. Отправка
	start := time.Now()
	err = o.transport.Send(ctx, transport.Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
		TextBody: render.StripHTML(body),
		Tag:      msg.TemplateCode,
	})
	o.metrics.ObserveSend(start, err)

	if err != nil {
		logger.Error("failed to send email", "error", err)
		return o.finish(ctx, logger, msg.NotificationID, domain.StatusFailed,
			fmt.Errorf("%w: %w", ErrTransportFailure, err), err.Error())
	}

	logger.Info("email sent", "template_code", msg.TemplateCode, "template_version", tmpl.Version)
	return o.finish(ctx, logger, msg.NotificationID, domain.StatusDelivered, nil, "")
}

// MarkFailed записывает статус failed с причиной.
// Используется consumer'ом, когда повторы исчерпаны.
func (o *Orchestrator) MarkFailed(ctx context.Context, notificationID, reason string) error {
	logger := o.logger.With("notification_id", notificationID)
	return o.record(ctx, logger, notificationID, domain.StatusFailed, reason)
}

// finish записывает статус и собирает Result.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, id string, status domain.Status, deliveryErr error, reason string) Result {
	return Result{
		Status:    status,
		Err:       deliveryErr,
		StatusErr: o.record(ctx, logger, id, status, reason),
	}
}

// record пишет статус в хранилище. Ошибка логируется и возвращается.
func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, id string, status domain.Status, reason string) error {
	o.metrics.Delivery(string(status))

	if err := o.status.Put(ctx, id, status, reason); err != nil {
		logger.Error("failed to record delivery status", "status", status, "error", err)
		return fmt.Errorf("%w: %v", ErrStatusWrite, err)
	}

	logger.Debug("delivery status recorded", "status", status)
	return nil
}

// Herald Email — consumer очереди email-уведомлений.
//
// Сервис:
//   - Получает NotificationMessage из RabbitMQ
//   - Разрешает шаблон (Redis кэш перед HTTP сервисом или Postgres)
//   - Отправляет письмо через провайдера (postmark, file, log)
//   - Записывает статус доставки в Redis
//   - Повторяет неудачные доставки через retry-очереди, затем dead-letter
//
// Экземпляры масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/orchestrator"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/retry"
	"github.com/shaiso/Herald/internal/status"
	"github.com/shaiso/Herald/internal/telemetry"
	"github.com/shaiso/Herald/internal/templates"
	"github.com/shaiso/Herald/internal/transport"
	"github.com/shaiso/Herald/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting herald-email")

	if err := run(logger); err != nil {
		logger.Error("herald-email failed", "error", err)
		os.Exit(1)
	}

	logger.Info("herald-email stopped")
}

func run(logger *slog.Logger) error {
	// Конфигурация: отсутствие обязательных значений — ошибка старта
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	// Redis
	rdb, err := repo.NewRedis(ctx, repo.RedisOptions{
		URL:            cfg.Redis.URL,
		RetryAttempts:  cfg.Redis.RetryAttempts,
		RetryInterval:  cfg.Redis.RetryInterval,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	// Источник шаблонов
	store, closeStore, err := newTemplateStore(ctx, cfg.Templates)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("template source ready", "source", cfg.Templates.Source)

	cache := templates.NewCache(templates.CacheConfig{
		Client:  rdb,
		Store:   store,
		TTL:     cfg.Templates.CacheTTL,
		Logger:  logger,
		Metrics: metrics,
	})

	// Транспорт
	sender, err := newSender(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("create email transport: %w", err)
	}
	if v, ok := sender.(transport.Verifier); ok && !v.VerifyConnection(ctx) {
		logger.Warn("email provider connection could not be verified", "provider", cfg.Email.Provider)
	}

	orch := orchestrator.New(orchestrator.Config{
		Templates: cache,
		Transport: sender,
		Status:    status.NewStore(rdb, cfg.StatusTTL),
		Logger:    logger,
		Metrics:   metrics,
	})

	// RabbitMQ: топология объявляется на каждом новом канале
	topology := mq.Topology{
		Exchange:    cfg.RabbitMQ.Exchange,
		Queue:       cfg.RabbitMQ.Queue,
		RoutingKey:  cfg.RabbitMQ.RoutingKey,
		RetryDelays: retry.Tiers(cfg.MaxRetries),
	}
	if err := topology.Validate(); err != nil {
		return err
	}

	mqConn, err := mq.Dial(cfg.RabbitMQ.URL(), logger, topology.Setup())
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer mqConn.Close()
	telemetry.RegisterBrokerConnected(registry, mqConn.IsConnected)
	logger.Info("rabbitmq connected")
	logger.Debug("rabbitmq topology\n" + topology.Info())

	w := worker.New(worker.Config{
		Orchestrator:               orch,
		Publisher:                  mq.NewPublisher(mqConn, logger),
		Conn:                       mqConn,
		Topology:                   topology,
		MaxRetries:                 cfg.MaxRetries,
		Prefetch:                   cfg.RabbitMQ.Prefetch,
		ShutdownGrace:              cfg.ShutdownGrace,
		DeadLetterInvalidRecipient: cfg.DeadLetterInvalidRecipient,
		Logger:                     logger,
		Metrics:                    metrics,
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// HTTP: /metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Сначала дожидаемся обработки in-flight сообщений, затем закрываем соединения
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}

	return nil
}

// newTemplateStore создаёт источник шаблонов по TEMPLATE_SOURCE.
func newTemplateStore(ctx context.Context, cfg config.Templates) (templates.Store, func(), error) {
	switch cfg.Source {
	case config.TemplateSourcePostgres:
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		return repo.NewTemplateRepo(pool), pool.Close, nil
	default:
		return templates.NewHTTPStore(cfg.ServiceURL, cfg.Timeout), func() {}, nil
	}
}

// newSender создаёт транспорт по EMAIL_PROVIDER.
func newSender(cfg config.Email, logger *slog.Logger) (transport.Sender, error) {
	switch cfg.Provider {
	case config.ProviderFile:
		return transport.NewFileSender(cfg.DevMailDir), nil
	case config.ProviderLog:
		return transport.NewLogSender(logger), nil
	default:
		sender, err := transport.NewPostmarkSender(transport.PostmarkConfig{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			From:         cfg.SenderEmail,
			ReplyTo:      cfg.ReplyTo,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	}
}

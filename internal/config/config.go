// Package config загружает конфигурацию сервиса из переменных окружения.
//
// Перед разбором подгружается необязательный .env файл. Отсутствие
// обязательного значения — фатальная ошибка старта, а не ошибка времени
// выполнения.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Источники шаблонов.
const (
	TemplateSourceHTTP     = "http"
	TemplateSourcePostgres = "postgres"
)

// Провайдеры email.
const (
	ProviderPostmark = "postmark"
	ProviderFile     = "file"
	ProviderLog      = "log"
)

var (
	// ErrParse — переменные окружения не удалось разобрать.
	ErrParse = errors.New("parse environment")

	// ErrInvalid — значения разобраны, но несовместимы.
	ErrInvalid = errors.New("invalid configuration")
)

// Config — полная конфигурация herald-email.
type Config struct {
	RabbitMQ  RabbitMQ  `envPrefix:"RABBITMQ_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Templates Templates
	Email     Email

	// MaxRetries — максимум повторов до dead-letter.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"5"`

	// StatusTTL — срок хранения записи статуса.
	StatusTTL time.Duration `env:"STATUS_TTL" envDefault:"24h"`

	// ShutdownGrace — сколько ждать обработку in-flight сообщений при остановке.
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"30s"`

	// DeadLetterInvalidRecipient — сразу отправлять сообщения без адреса в DLQ.
	DeadLetterInvalidRecipient bool `env:"DEAD_LETTER_INVALID_RECIPIENT" envDefault:"true"`

	// MetricsPort — порт для /metrics.
	MetricsPort int `env:"METRICS_PORT" envDefault:"8083"`
}

// RabbitMQ — подключение и топология брокера.
type RabbitMQ struct {
	Host     string `env:"HOST,required"`
	Port     int    `env:"PORT" envDefault:"5672"`
	User     string `env:"USER,required"`
	Password string `env:"PASSWORD,required"`
	VHost    string `env:"VHOST" envDefault:"/"`

	Exchange   string `env:"EXCHANGE,required"`
	Queue      string `env:"QUEUE,required"`
	RoutingKey string `env:"ROUTING_KEY,required"`

	// Prefetch — максимум неподтверждённых сообщений на канал.
	Prefetch int `env:"PREFETCH" envDefault:"10"`
}

// URL собирает AMQP URI из компонентов.
func (r RabbitMQ) URL() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     r.Host,
		Port:     r.Port,
		Username: r.User,
		Password: r.Password,
		Vhost:    r.VHost,
	}.String()
}

// Redis — подключение к Redis (кэш шаблонов и статусы).
type Redis struct {
	URL            string        `env:"URL,required"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
}

// Templates — источник шаблонов и кэш.
type Templates struct {
	Source     string        `env:"TEMPLATE_SOURCE" envDefault:"http"`
	ServiceURL string        `env:"TEMPLATE_SERVICE_URL"`
	DBURL      string        `env:"DB_URL"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"2h"`
	Timeout    time.Duration `env:"TEMPLATE_TIMEOUT" envDefault:"10s"`
}

// Email — транспорт доставки.
type Email struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"postmark"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"`
	ReplyTo              string `env:"REPLY_TO_EMAIL"`
	DevMailDir           string `env:"DEV_MAIL_DIR" envDefault:"./tmp/mail"`
}

// Load читает .env (если есть) и переменные окружения процесса.
func Load() (*Config, error) {
	// .env может отсутствовать — это нормально
	_ = godotenv.Load()

	return parse(env.Options{})
}

// LoadFrom разбирает конфигурацию из переданного окружения.
// Используется в тестах и утилитах.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Join(ErrParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет условно обязательные значения и диапазоны.
func (c *Config) Validate() error {
	var errs []error

	if c.RabbitMQ.Prefetch <= 0 {
		errs = append(errs, fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.Prefetch))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries))
	}
	if c.Templates.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.StatusTTL <= 0 {
		errs = append(errs, errors.New("STATUS_TTL must be positive"))
	}

	switch c.Templates.Source {
	case TemplateSourceHTTP:
		if _, err := url.ParseRequestURI(c.Templates.ServiceURL); err != nil {
			errs = append(errs, errors.New("TEMPLATE_SERVICE_URL is required for http template source"))
		}
	case TemplateSourcePostgres:
		if c.Templates.DBURL == "" {
			errs = append(errs, errors.New("DB_URL is required for postgres template source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TEMPLATE_SOURCE %q", c.Templates.Source))
	}

	switch c.Email.Provider {
	case ProviderPostmark:
		if c.Email.PostmarkServerToken == "" {
			errs = append(errs, errors.New("POSTMARK_SERVER_TOKEN is required for postmark provider"))
		}
		if c.Email.SenderEmail == "" {
			errs = append(errs, errors.New("SENDER_EMAIL is required for postmark provider"))
		}
	case ProviderFile:
		if c.Email.DevMailDir == "" {
			errs = append(errs, errors.New("DEV_MAIL_DIR is required for file provider"))
		}
	case ProviderLog:
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalid}, errs...)...)
	}
	return nil
}

// MetricsAddr возвращает адрес для HTTP listener метрик.
func (c *Config) MetricsAddr() string {
	return ":" + strconv.Itoa(c.MetricsPort)
}

package mq

import (
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declarer — подмножество *amqp.Channel для объявления топологии.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology описывает exchanges и очереди конвейера доставки.
//
//	<exchange> (direct)
//	└── <queue> [routing: <key>]
//	<exchange>.retry (direct)
//	└── <queue>.retry.<ms> [routing: retry.<ms>, ttl=<ms>, dlx → <exchange>/<key>]
//	<exchange>.dlx (direct)
//	└── <queue>.dlq [routing: <key>]
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string

	// RetryDelays — задержки повторов; по одной очереди на задержку.
	RetryDelays []time.Duration
}

// RetryExchange возвращает имя exchange для повторов.
func (t Topology) RetryExchange() string {
	return t.Exchange + ".retry"
}

// DeadLetterExchange возвращает имя dead-letter exchange.
func (t Topology) DeadLetterExchange() string {
	return t.Exchange + ".dlx"
}

// DeadLetterQueue возвращает имя dead-letter очереди.
func (t Topology) DeadLetterQueue() string {
	return t.Queue + ".dlq"
}

// RetryQueue возвращает имя очереди повторов для задержки.
func (t Topology) RetryQueue(delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%d", t.Queue, delay.Milliseconds())
}

// RetryRoutingKey возвращает routing key очереди повторов для задержки.
func (t Topology) RetryRoutingKey(delay time.Duration) string {
	return fmt.Sprintf("retry.%d", delay.Milliseconds())
}

// Validate проверяет обязательные имена.
func (t Topology) Validate() error {
	switch {
	case t.Exchange == "":
		return fmt.Errorf("topology: exchange is required")
	case t.Queue == "":
		return fmt.Errorf("topology: queue is required")
	case t.RoutingKey == "":
		return fmt.Errorf("topology: routing key is required")
	}
	for _, d := range t.RetryDelays {
		if d <= 0 {
			return fmt.Errorf("topology: retry delay must be positive, got %s", d)
		}
	}
	return nil
}

// Setup возвращает SetupFunc, объявляющую топологию на канале.
func (t Topology) Setup() SetupFunc {
	return func(ch *amqp.Channel) error {
		return t.declare(ch)
	}
}

func (t Topology) declare(ch declarer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	// 1. Создаём exchanges
	for _, name := range []string{t.Exchange, t.RetryExchange(), t.DeadLetterExchange()} {
		err := ch.ExchangeDeclare(
			name,     // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	// 2. Создаём queues и привязки
	type binding struct {
		queue    string
		key      string
		exchange string
		args     amqp.Table
	}

	// Основная очередь без DLX: повторы и dead-letter публикуются явно
	bindings := []binding{
		{t.Queue, t.RoutingKey, t.Exchange, nil},
		{t.DeadLetterQueue(), t.RoutingKey, t.DeadLetterExchange(), nil},
	}

	// Очереди повторов: по истечении TTL сообщение возвращается в основную очередь
	for _, delay := range t.RetryDelays {
		bindings = append(bindings, binding{
			queue:    t.RetryQueue(delay),
			key:      t.RetryRoutingKey(delay),
			exchange: t.RetryExchange(),
			args: amqp.Table{
				"x-message-ttl":             delay.Milliseconds(),
				"x-dead-letter-exchange":    t.Exchange,
				"x-dead-letter-routing-key": t.RoutingKey,
			},
		})
	}

	for _, b := range bindings {
		_, err := ch.QueueDeclare(
			b.queue, // name
			true,    // durable
			false,   // delete when unused
			false,   // exclusive
			false,   // no-wait
			b.args,  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}

		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (direct)\n", t.Exchange)
	fmt.Fprintf(&b, "└── %s [routing: %s]\n", t.Queue, t.RoutingKey)
	fmt.Fprintf(&b, "%s (direct)\n", t.RetryExchange())
	for i, delay := range t.RetryDelays {
		branch := "├──"
		if i == len(t.RetryDelays)-1 {
			branch = "└──"
		}
		fmt.Fprintf(&b, "%s %s [routing: %s, ttl: %s]\n", branch, t.RetryQueue(delay), t.RetryRoutingKey(delay), delay)
	}
	fmt.Fprintf(&b, "%s (direct)\n", t.DeadLetterExchange())
	fmt.Fprintf(&b, "└── %s [routing: %s]\n", t.DeadLetterQueue(), t.RoutingKey)

	return b.String()
}

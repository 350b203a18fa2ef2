package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки соединения.
var (
	ErrNoChannel = errors.New("no channel available")
	ErrClosed    = errors.New("connection closed")
)

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// SetupFunc выполняется на каждом новом канале (после connect и reconnect).
// Используется для объявления топологии.
type SetupFunc func(ch *amqp.Channel) error

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
//   - Переподключение с экспоненциальной задержкой (1s, 2s, ... 30s)
//   - Закрытие только канала или отмена подписки брокером (basic.cancel)
//     переоткрывают канал без разрыва соединения
//   - Setup-хуки повторяются на каждом новом канале
//   - Канал работает в режиме publisher confirms
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	setups  []SetupFunc

	// Подписки на события текущих conn и channel
	watch lossNotify

	closed   bool
	closedCh chan struct{}

	// Для уведомления о переподключении
	reconnectCh chan struct{}
}

// lossNotify — каналы событий, по которым watchConnection узнаёт о потере
// соединения, канала или подписки.
type lossNotify struct {
	connClosed <-chan *amqp.Error
	chClosed   <-chan *amqp.Error
	cancelled  <-chan string
}

// loss — что именно потеряно.
type loss int

const (
	lossShutdown loss = iota // Close
	lossConnection
	lossChannel
)

// Dial создаёт соединение с RabbitMQ и выполняет setup-хуки.
func Dial(url string, logger *slog.Logger, setups ...SetupFunc) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger,
		setups:      setups,
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение, открывает канал и прогоняет setup-хуки.
// После Close возвращает ErrClosed, не открывая новое соединение.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := c.openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = ch
	c.watch = lossNotify{
		connClosed: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chClosed:   ch.NotifyClose(make(chan *amqp.Error, 1)),
		cancelled:  ch.NotifyCancel(make(chan string, 1)),
	}

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// openChannel открывает канал в режиме confirms и прогоняет setup-хуки.
func (c *Connection) openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	for _, setup := range c.setups {
		if err := setup(ch); err != nil {
			ch.Close()
			return nil, fmt.Errorf("channel setup: %w", err)
		}
	}

	return ch, nil
}

// reopenChannel заменяет канал на живом соединении.
func (c *Connection) reopenChannel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("reopen channel: %w", amqp.ErrClosed)
	}

	if c.channel != nil && !c.channel.IsClosed() {
		// Подписка отменена брокером, но канал жив
		_ = c.channel.Close()
	}

	ch, err := c.openChannel(c.conn)
	if err != nil {
		return err
	}

	c.channel = ch
	c.watch.chClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	c.watch.cancelled = ch.NotifyCancel(make(chan string, 1))

	c.logger.Info("channel reopened")

	return nil
}

// watchConnection следит за соединением и каналом и восстанавливает их.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		watch := c.watch
		c.mu.RUnlock()

		kind, reason := awaitLoss(c.closedCh, watch)

		switch kind {
		case lossShutdown:
			return

		case lossChannel:
			c.logger.Warn("channel lost", "reason", reason)
			err := c.reopenChannel()
			if err == nil {
				c.signalReconnect()
				continue
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			c.logger.Warn("failed to reopen channel, reconnecting", "error", err)
			c.dropConnection()

		case lossConnection:
			c.logger.Warn("connection closed", "reason", reason)
		}

		if !c.reconnect() {
			return
		}
	}
}

// awaitLoss ждёт первого события потери. Закрытие канала, пришедшее
// вместе с закрытием соединения, считается потерей соединения.
func awaitLoss(done <-chan struct{}, w lossNotify) (loss, string) {
	select {
	case <-done:
		return lossShutdown, ""
	case err := <-w.connClosed:
		return lossConnection, errText(err)
	case err := <-w.chClosed:
		select {
		case cerr := <-w.connClosed:
			return lossConnection, errText(cerr)
		default:
		}
		return lossChannel, errText(err)
	case tag := <-w.cancelled:
		return lossChannel, "consumer cancelled by broker: " + tag
	}
}

func errText(err *amqp.Error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}

// dropConnection закрывает текущее соединение перед полным reconnect.
func (c *Connection) dropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
}

// reconnect переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыто через Close.
func (c *Connection) reconnect() bool {
	delay := reconnectInitialDelay

	for {
		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			if errors.Is(err, ErrClosed) {
				return false
			}
			c.logger.Warn("reconnect failed", "error", err)
			delay = nextDelay(delay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		c.signalReconnect()

		return true
	}
}

// signalReconnect будит consumer'а, ждущего новый канал. Не блокируется:
// одного непрочитанного сигнала достаточно.
func (c *Connection) signalReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// nextDelay удваивает задержку (максимум 30 секунд).
func nextDelay(d time.Duration) time.Duration {
	return min(d*2, reconnectMaxDelay)
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Done закрывается после Close.
func (c *Connection) Done() <-chan struct{} {
	return c.closedCh
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

// IsConnected проверяет, что соединение и канал открыты.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.conn == nil || c.channel == nil {
		return false
	}

	return !c.conn.IsClosed() && !c.channel.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch, closed := c.channel, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	return fn(ch)
}

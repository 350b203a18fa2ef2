package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions — параметры подключения к Redis.
type RedisOptions struct {
	URL            string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// NewRedis подключается к Redis и ждёт успешного PING.
// Делает до RetryAttempts попыток с паузой RetryInterval.
func NewRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, errors.New("redis url is empty")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}

	connOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	var lastErr error
	for range opts.RetryAttempts {
		client := redis.NewClient(connOpts)

		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis not ready: %w", errors.Join(lastErr, ctx.Err()))
		case <-time.After(opts.RetryInterval):
		}
	}

	return nil, fmt.Errorf("redis not ready after %d attempts: %w", opts.RetryAttempts, lastErr)
}

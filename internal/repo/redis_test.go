package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), RedisOptions{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{URL: "http://nope"})
	assert.Error(t, err)

	_, err = NewRedis(context.Background(), RedisOptions{})
	assert.Error(t, err)
}

func TestNewRedis_NotReady(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisOptions{
		URL:           "redis://" + addr + "/0",
		RetryAttempts: 2,
		RetryInterval: 10 * time.Millisecond,
	})
	assert.Error(t, err)
}

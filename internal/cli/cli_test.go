package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/status"
)

type fakeStatus map[string]domain.DeliveryStatus

func (f fakeStatus) Get(_ context.Context, id string) (*domain.DeliveryStatus, error) {
	ds, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrNotFound, id)
	}
	return &ds, nil
}

type fakeInvalidator struct {
	codes []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, code string) error {
	f.codes = append(f.codes, code)
	return nil
}

type publishCall struct {
	exchange, key string
	payload       any
	priority      uint8
}

type fakePublisher struct {
	calls []publishCall
}

func (f *fakePublisher) PublishJSON(_ context.Context, exchange, key string, payload any, priority uint8) error {
	f.calls = append(f.calls, publishCall{exchange, key, payload, priority})
	return nil
}

func outputs(jsonMode bool) (*bytes.Buffer, *bytes.Buffer, OutputFn) {
	var stdout, stderr bytes.Buffer
	return &stdout, &stderr, func() *Output { return NewOutputTo(&stdout, &stderr, jsonMode) }
}

func TestStatusCmd_Table(t *testing.T) {
	store := fakeStatus{
		"n-1": domain.NewDeliveryStatus("n-1", domain.StatusFailed, "template not found: welcome",
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	stdout, stderr, outFn := outputs(false)

	cmd := NewStatusCmd(func() (StatusReader, error) { return store, nil }, outFn)
	cmd.SetArgs([]string{"n-1", "n-2"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, stdout.String(), "NOTIFICATION_ID")
	assert.Contains(t, stdout.String(), "template not found: welcome")
	assert.Contains(t, stdout.String(), "2026-01-01T00:00:00Z")
	assert.Contains(t, stderr.String(), "no status for n-2")
}

func TestStatusCmd_JSON(t *testing.T) {
	store := fakeStatus{
		"n-1": domain.NewDeliveryStatus("n-1", domain.StatusDelivered, "", time.Now()),
	}
	stdout, _, outFn := outputs(true)

	cmd := NewStatusCmd(func() (StatusReader, error) { return store, nil }, outFn)
	cmd.SetArgs([]string{"n-1"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "delivered", got[0]["status"])
	assert.Nil(t, got[0]["error"])
}

func TestStatusCmd_NoneFound(t *testing.T) {
	_, _, outFn := outputs(false)

	cmd := NewStatusCmd(func() (StatusReader, error) { return fakeStatus{}, nil }, outFn)
	cmd.SetArgs([]string{"missing"})
	cmd.SilenceUsage = true

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestTemplateInvalidateCmd(t *testing.T) {
	inv := &fakeInvalidator{}
	_, stderr, outFn := outputs(false)

	cmd := NewTemplateCmd(func() (TemplateInvalidator, error) { return inv, nil }, outFn)
	cmd.SetArgs([]string{"invalidate", "welcome", "order_ready"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Equal(t, []string{"welcome", "order_ready"}, inv.codes)
	assert.Contains(t, stderr.String(), "Template invalidated: welcome")
}

func TestSendCmd(t *testing.T) {
	pub := &fakePublisher{}
	_, stderr, outFn := outputs(false)
	target := &SendTarget{Exchange: "notifications.direct", RoutingKey: "email"}

	cmd := NewSendCmd(func() (Publisher, error) { return pub, nil }, target, outFn)
	cmd.SetArgs([]string{
		"--id", "n-1",
		"--template", "welcome",
		"--email", "ana@example.com",
		"--var", "name=Ana",
		"--var", "link=https://example.com/?a=b",
		"--priority", "4",
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	assert.Equal(t, "notifications.direct", call.exchange)
	assert.Equal(t, "email", call.key)
	assert.Equal(t, uint8(4), call.priority)

	msg, ok := call.payload.(domain.NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "n-1", msg.NotificationID)
	assert.Equal(t, "n-1", msg.CorrelationID)
	assert.Equal(t, "welcome", msg.TemplateCode)
	assert.True(t, msg.EmailEnabled())
	assert.Equal(t, "ana@example.com", msg.RecipientEmail())
	assert.Equal(t, "https://example.com/?a=b", msg.Variables["link"])
	assert.Zero(t, msg.Metadata.RetryCount)

	assert.Contains(t, stderr.String(), "Notification queued: n-1")
}

func TestSendCmd_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing template", []string{"--email", "a@b.c"}},
		{"bad var", []string{"--template", "x", "--var", "novalue"}},
		{"bad priority", []string{"--template", "x", "--priority", "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			_, _, outFn := outputs(false)
			target := &SendTarget{Exchange: "ex", RoutingKey: "rk"}

			cmd := NewSendCmd(func() (Publisher, error) { return pub, nil }, target, outFn)
			cmd.SetArgs(tt.args)
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			assert.Error(t, cmd.ExecuteContext(context.Background()))
			assert.Empty(t, pub.calls)
		})
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, vars)

	_, err = parseVars([]string{"=v"})
	assert.Error(t, err)
}

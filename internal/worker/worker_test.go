package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/orchestrator"
)

// --- fakes ---

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	requeue []bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type markFailedCall struct {
	id, reason string
}

type fakeOrchestrator struct {
	mu         sync.Mutex
	deliver    func(msg *domain.NotificationMessage) orchestrator.Result
	delivered  []*domain.NotificationMessage
	markFailed []markFailedCall
}

func (f *fakeOrchestrator) Deliver(_ context.Context, msg *domain.NotificationMessage) orchestrator.Result {
	f.mu.Lock()
	f.delivered = append(f.delivered, msg)
	f.mu.Unlock()

	if f.deliver == nil {
		return orchestrator.Result{Status: domain.StatusDelivered}
	}
	return f.deliver(msg)
}

func (f *fakeOrchestrator) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markFailed = append(f.markFailed, markFailedCall{id: id, reason: reason})
	return nil
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

// --- helpers ---

var testTopology = mq.Topology{
	Exchange:   "notifications.direct",
	Queue:      "email.queue",
	RoutingKey: "email",
}

func failWith(err error) func(*domain.NotificationMessage) orchestrator.Result {
	return func(*domain.NotificationMessage) orchestrator.Result {
		return orchestrator.Result{Status: domain.StatusFailed, Err: err}
	}
}

func newTestWorker(orch *fakeOrchestrator, pub *fakePublisher) *Worker {
	return New(Config{
		Orchestrator:               orch,
		Publisher:                  pub,
		Topology:                   testTopology,
		MaxRetries:                 5,
		DeadLetterInvalidRecipient: true,
	})
}

func messageBody(t *testing.T, retryCount int) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"notification_id":  "n-1",
		"correlation_id":   "c-1",
		"template_code":    "welcome",
		"variables":        map[string]any{"name": "Ana"},
		"priority":         3,
		"user_preferences": map[string]any{"email": true},
		"user_contact":     map[string]any{"email": "ana@example.com"},
		"metadata":         map[string]any{"retry_count": retryCount},
	})
	require.NoError(t, err)
	return body
}

func handle(w *Worker, body []byte) *fakeAcknowledger {
	ack := &fakeAcknowledger{}
	w.handleDelivery(context.Background(), &mq.Delivery{Raw: amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
	}})
	return ack
}

func decodeRetryCount(t *testing.T, body []byte) int {
	t.Helper()
	var msg domain.NotificationMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg.Metadata.RetryCount
}

// --- tests ---

func TestHandleDelivery_SuccessAcksOnce(t *testing.T) {
	orch := &fakeOrchestrator{}
	pub := &fakePublisher{}
	w := newTestWorker(orch, pub)

	ack := handle(w, messageBody(t, 0))

	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, ack.requeue)
	assert.Empty(t, pub.sent)
	require.Len(t, orch.delivered, 1)
	assert.Equal(t, "n-1", orch.delivered[0].NotificationID)
}

func TestHandleDelivery_SkippedAcks(t *testing.T) {
	orch := &fakeOrchestrator{deliver: func(*domain.NotificationMessage) orchestrator.Result {
		return orchestrator.Result{Status: domain.StatusSkipped}
	}}
	w := newTestWorker(orch, &fakePublisher{})

	ack := handle(w, messageBody(t, 0))

	assert.Equal(t, 1, ack.acks)
}

func TestHandleDelivery_StatusWriteErrorDoesNotChangeAck(t *testing.T) {
	orch := &fakeOrchestrator{deliver: func(*domain.NotificationMessage) orchestrator.Result {
		return orchestrator.Result{Status: domain.StatusDelivered, StatusErr: orchestrator.ErrStatusWrite}
	}}
	w := newTestWorker(orch, &fakePublisher{})

	ack := handle(w, messageBody(t, 0))

	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, ack.requeue)
}

func TestHandleDelivery_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{not json")},
		{"empty body", nil},
		{"missing notification_id", []byte(`{"template_code":"welcome"}`)},
		{"missing template_code", []byte(`{"notification_id":"n-1"}`)},
		{"bad priority", []byte(`{"notification_id":"n-1","template_code":"x","priority":42}`)},
		{"bad notification_type", []byte(`{"notification_id":"n-1","template_code":"x","notification_type":"sms"}`)},
		{"missing user_preferences", []byte(`{"notification_id":"n-1","template_code":"x","user_contact":{"email":"a@b.c"}}`)},
		{"null user_preferences", []byte(`{"notification_id":"n-1","template_code":"x","user_preferences":null,"user_contact":{"email":"a@b.c"}}`)},
		{"null user_contact", []byte(`{"notification_id":"n-1","template_code":"x","user_preferences":{"email":true},"user_contact":null}`)},
		{"preferences without email flag", []byte(`{"notification_id":"n-1","template_code":"x","user_preferences":{"push":true},"user_contact":{"email":"a@b.c"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &fakeOrchestrator{}
			pub := &fakePublisher{}
			w := newTestWorker(orch, pub)

			ack := handle(w, tt.body)

			assert.Empty(t, orch.delivered, "orchestrator must not be invoked")
			assert.Zero(t, ack.acks)
			assert.Equal(t, []bool{false}, ack.requeue)

			require.Len(t, pub.sent, 1)
			assert.Equal(t, "notifications.direct.dlx", pub.sent[0].exchange)
			assert.Equal(t, "email", pub.sent[0].key)
			assert.Equal(t, tt.body, pub.sent[0].msg.Body)
			assert.NotEmpty(t, pub.sent[0].msg.Headers[HeaderDeathReason])
		})
	}
}

func TestHandleDelivery_MalformedNeverRequeued(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	w := newTestWorker(&fakeOrchestrator{}, pub)

	ack := handle(w, []byte("garbage"))

	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestHandleDelivery_TransientFailureSchedulesRetry(t *testing.T) {
	tests := []struct {
		retryCount int
		wantKey    string
	}{
		{0, "retry.2000"},
		{1, "retry.4000"},
		{3, "retry.16000"},
		{4, "retry.32000"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry_count=%d", tt.retryCount), func(t *testing.T) {
			orch := &fakeOrchestrator{deliver: failWith(fmt.Errorf("%w: timeout", orchestrator.ErrTransportFailure))}
			pub := &fakePublisher{}
			w := newTestWorker(orch, pub)

			ack := handle(w, messageBody(t, tt.retryCount))

			assert.Zero(t, ack.acks)
			assert.Equal(t, []bool{false}, ack.requeue)
			assert.Empty(t, orch.markFailed)

			require.Len(t, pub.sent, 1)
			sent := pub.sent[0]
			assert.Equal(t, "notifications.direct.retry", sent.exchange)
			assert.Equal(t, tt.wantKey, sent.key)
			assert.Equal(t, tt.retryCount+1, decodeRetryCount(t, sent.msg.Body))
			assert.Equal(t, int64(tt.retryCount+1), sent.msg.Headers[HeaderRetryCount])
			assert.Equal(t, uint8(3), sent.msg.Priority)
			assert.Equal(t, "c-1", sent.msg.CorrelationId)
		})
	}
}

func TestHandleDelivery_RetryPublishFailureRequeues(t *testing.T) {
	orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrTransportFailure)}
	pub := &fakePublisher{err: errors.New("channel closed")}
	w := newTestWorker(orch, pub)

	ack := handle(w, messageBody(t, 0))

	assert.Zero(t, ack.acks)
	assert.Equal(t, []bool{true}, ack.requeue)
}

func TestHandleDelivery_ExhaustedRetriesDeadLetter(t *testing.T) {
	orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrTransportFailure)}
	pub := &fakePublisher{}
	w := newTestWorker(orch, pub)

	ack := handle(w, messageBody(t, 5))

	assert.Zero(t, ack.acks)
	assert.Equal(t, []bool{false}, ack.requeue)

	require.Len(t, orch.markFailed, 1)
	assert.Equal(t, "n-1", orch.markFailed[0].id)
	assert.Contains(t, orch.markFailed[0].reason, ErrRetryExhausted.Error())

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "notifications.direct.dlx", pub.sent[0].exchange)
	assert.Equal(t, 5, decodeRetryCount(t, pub.sent[0].msg.Body))
	assert.Equal(t, int64(5), pub.sent[0].msg.Headers[HeaderRetryCount])
}

func TestHandleDelivery_LargeRetryCountHeaderNotTruncated(t *testing.T) {
	const retryCount = 1 << 40

	orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrTransportFailure)}
	pub := &fakePublisher{}
	w := newTestWorker(orch, pub)

	ack := handle(w, messageBody(t, retryCount))

	assert.Equal(t, []bool{false}, ack.requeue)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "notifications.direct.dlx", pub.sent[0].exchange)
	assert.Equal(t, int64(retryCount), pub.sent[0].msg.Headers[HeaderRetryCount])
}

func TestHandleDelivery_DeadLetterPublishFailureRequeues(t *testing.T) {
	orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrTransportFailure)}
	pub := &fakePublisher{err: errors.New("broker down")}
	w := newTestWorker(orch, pub)

	ack := handle(w, messageBody(t, 5))

	assert.Equal(t, []bool{true}, ack.requeue)
}

func TestHandleDelivery_InvalidRecipient(t *testing.T) {
	t.Run("dead-lettered immediately", func(t *testing.T) {
		orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrInvalidRecipient)}
		pub := &fakePublisher{}
		w := newTestWorker(orch, pub)

		ack := handle(w, messageBody(t, 0))

		assert.Equal(t, []bool{false}, ack.requeue)
		assert.Empty(t, orch.markFailed, "status already written by Deliver")
		require.Len(t, pub.sent, 1)
		assert.Equal(t, "notifications.direct.dlx", pub.sent[0].exchange)
	})

	t.Run("retried when configured", func(t *testing.T) {
		orch := &fakeOrchestrator{deliver: failWith(orchestrator.ErrInvalidRecipient)}
		pub := &fakePublisher{}
		w := New(Config{Orchestrator: orch, Publisher: pub, Topology: testTopology})

		handle(w, messageBody(t, 0))

		require.Len(t, pub.sent, 1)
		assert.Equal(t, "notifications.direct.retry", pub.sent[0].exchange)
	})
}

// Неизвестный шаблон повторяется до максимума, затем уходит в dead-letter.
func TestHandleDelivery_RetryCycleUntilDeadLetter(t *testing.T) {
	orch := &fakeOrchestrator{deliver: failWith(fmt.Errorf("%w: welcome", orchestrator.ErrTemplateNotFound))}
	pub := &fakePublisher{}
	w := newTestWorker(orch, pub)

	body := messageBody(t, 0)
	var counts []int

	for range 10 {
		handle(w, body)

		last := pub.sent[len(pub.sent)-1]
		if last.exchange == testTopology.DeadLetterExchange() {
			break
		}
		body = last.msg.Body
		counts = append(counts, decodeRetryCount(t, body))
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, counts)
	assert.Len(t, orch.delivered, 6)
	assert.Len(t, orch.markFailed, 1)
}

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage([]byte(`{
		"notification_id": "n-1",
		"template_code": "welcome",
		"variables": {"name": "Ana", "id": 42},
		"user_preferences": {"email": true, "push": false},
		"user_contact": {"email": "ana@example.com"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "n-1", msg.NotificationID)
	assert.Equal(t, 0, msg.Metadata.RetryCount, "missing metadata defaults to 0")
	assert.Equal(t, float64(42), msg.Variables["id"])
	assert.True(t, msg.EmailEnabled())
	assert.Equal(t, "ana@example.com", msg.RecipientEmail())

	optOut, err := decodeMessage([]byte(`{
		"notification_id": "n-2",
		"template_code": "welcome",
		"user_preferences": {"email": false},
		"user_contact": {"email": ""}
	}`))
	require.NoError(t, err, "explicit opt-out and empty address are valid payloads")
	assert.False(t, optOut.EmailEnabled())

	for name, body := range map[string]string{
		"missing user_preferences":       `{"notification_id":"n-1","template_code":"welcome","user_contact":{"email":"a@b.c"}}`,
		"null user_preferences":          `{"notification_id":"n-1","template_code":"welcome","user_preferences":null,"user_contact":{"email":"a@b.c"}}`,
		"missing user_contact":           `{"notification_id":"n-1","template_code":"welcome","user_preferences":{"email":true}}`,
		"null user_contact":              `{"notification_id":"n-1","template_code":"welcome","user_preferences":{"email":true},"user_contact":null}`,
		"null email flag":                `{"notification_id":"n-1","template_code":"welcome","user_preferences":{"email":null},"user_contact":{"email":"a@b.c"}}`,
		"preferences without email flag": `{"notification_id":"n-1","template_code":"welcome","user_preferences":{},"user_contact":{"email":"a@b.c"}}`,
	} {
		_, err := decodeMessage([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidMessage, name)
	}

	_, err = decodeMessage([]byte(`[]`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = decodeMessage([]byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

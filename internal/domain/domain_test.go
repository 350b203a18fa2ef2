package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAttempt(t *testing.T) {
	tests := []struct {
		current, want int
	}{
		{0, 1},
		{3, 4},
		{-2, 1},
	}

	for _, tt := range tests {
		msg := NotificationMessage{NotificationID: "n-1", Metadata: Metadata{RetryCount: tt.current}}

		next := msg.NextAttempt()

		assert.Equal(t, tt.want, next.Metadata.RetryCount)
		assert.Equal(t, tt.current, msg.Metadata.RetryCount, "original is not modified")
		assert.Equal(t, "n-1", next.NotificationID)
	}
}

func TestNotificationMessage_JSON(t *testing.T) {
	var msg NotificationMessage
	err := json.Unmarshal([]byte(`{
		"notification_id": "n-1",
		"correlation_id": "c-1",
		"notification_type": "email",
		"template_code": "welcome",
		"variables": {"name": "Ana"},
		"user_preferences": {"email": true, "push": false},
		"user_contact": {"email": "ana@example.com", "push_token": "tok"},
		"metadata": {"retry_count": 2}
	}`), &msg)
	require.NoError(t, err)

	assert.Equal(t, NotificationTypeEmail, msg.Type)
	assert.Equal(t, "tok", msg.Contact.PushToken)
	assert.True(t, msg.EmailEnabled())
	assert.Equal(t, "ana@example.com", msg.RecipientEmail())
	assert.Equal(t, 2, msg.Metadata.RetryCount)
}

func TestNotificationMessage_Accessors(t *testing.T) {
	enabled, disabled := true, false

	tests := []struct {
		name      string
		msg       NotificationMessage
		wantEmail bool
		wantTo    string
	}{
		{"empty message", NotificationMessage{}, false, ""},
		{"preferences without email flag", NotificationMessage{Preferences: &UserPreferences{}}, false, ""},
		{"email disabled", NotificationMessage{Preferences: &UserPreferences{Email: &disabled}}, false, ""},
		{
			name: "email enabled",
			msg: NotificationMessage{
				Preferences: &UserPreferences{Email: &enabled},
				Contact:     &UserContact{Email: "ana@example.com"},
			},
			wantEmail: true,
			wantTo:    "ana@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEmail, tt.msg.EmailEnabled())
			assert.Equal(t, tt.wantTo, tt.msg.RecipientEmail())
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPending.IsValid())
	assert.True(t, StatusSkipped.IsValid())
	assert.False(t, Status("sent").IsValid())
}

func TestDeliveryStatus_JSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	t.Run("no error is null", func(t *testing.T) {
		data, err := json.Marshal(NewDeliveryStatus("n-1", StatusDelivered, "", now))
		require.NoError(t, err)

		assert.JSONEq(t, `{
			"notification_id": "n-1",
			"status": "delivered",
			"timestamp": "2026-03-01T09:00:00Z",
			"error": null
		}`, string(data))
	})

	t.Run("error text", func(t *testing.T) {
		ds := NewDeliveryStatus("n-1", StatusFailed, "template not found: welcome", now)

		assert.Equal(t, "template not found: welcome", ds.ErrorText())

		data, err := json.Marshal(ds)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"error":"template not found: welcome"`)
	})
}

package domain

import "time"

// Status — статус доставки уведомления.
//
// Жизненный цикл:
//
//	PENDING → DELIVERED
//	        ↘ FAILED (может быть retry → снова DELIVERED или FAILED)
//	(или) → SKIPPED (пользователь отключил канал)
type Status string

const (
	// StatusPending — уведомление принято, попытка доставки ещё не завершена.
	StatusPending Status = "pending"

	// StatusDelivered — провайдер принял письмо.
	StatusDelivered Status = "delivered"

	// StatusFailed — последняя попытка доставки завершилась ошибкой.
	StatusFailed Status = "failed"

	// StatusSkipped — доставка не выполнялась по настройкам пользователя.
	StatusSkipped Status = "skipped"
)

// IsValid проверяет, что статус входит в известное множество.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление Status.
func (s Status) String() string {
	return string(s)
}

// DeliveryStatus — запись о результате доставки одного уведомления.
//
// Одна запись на notification_id, последняя запись побеждает.
// Error сериализуется как null, если ошибки нет.
type DeliveryStatus struct {
	NotificationID string    `json:"notification_id"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Error          *string   `json:"error"`
}

// NewDeliveryStatus создаёт запись со временем now (UTC).
// Пустой errText означает отсутствие ошибки.
func NewDeliveryStatus(id string, status Status, errText string, now time.Time) DeliveryStatus {
	ds := DeliveryStatus{
		NotificationID: id,
		Status:         status,
		Timestamp:      now.UTC(),
	}
	if errText != "" {
		ds.Error = &errText
	}
	return ds
}

// ErrorText возвращает текст ошибки или пустую строку.
func (d DeliveryStatus) ErrorText() string {
	if d.Error == nil {
		return ""
	}
	return *d.Error
}

package domain

// NotificationType — канал доставки, для которого предназначено сообщение.
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypePush  NotificationType = "push"
)

// NotificationMessage — сообщение из очереди, инициирующее доставку.
//
// Сообщение неизменяемо, кроме Metadata.RetryCount: его увеличивает
// consumer перед повторной отправкой в retry-топологию.
type NotificationMessage struct {
	// NotificationID — идентификатор уведомления, ключ статуса.
	NotificationID string `json:"notification_id" validate:"required"`

	// CorrelationID — сквозной идентификатор для логов.
	CorrelationID string `json:"correlation_id"`

	// RequestID — идентификатор исходного запроса в API gateway.
	RequestID string `json:"request_id,omitempty"`

	// UserID — получатель в терминах user-service.
	UserID string `json:"user_id,omitempty"`

	// Type — "email" или "push". Пустое значение трактуется как email.
	Type NotificationType `json:"notification_type,omitempty" validate:"omitempty,oneof=email push"`

	// TemplateCode — код шаблона для заполнения.
	TemplateCode string `json:"template_code" validate:"required"`

	// Variables — значения для плейсхолдеров шаблона (только скаляры).
	Variables map[string]any `json:"variables"`

	// Priority — приоритет AMQP (0-9), переносится на повторные копии.
	Priority int `json:"priority,omitempty" validate:"gte=0,lte=9"`

	// Preferences и Contact обязательны: отсутствующий или null объект
	// нельзя трактовать как отказ пользователя от канала.
	Preferences *UserPreferences `json:"user_preferences" validate:"required"`
	Contact     *UserContact     `json:"user_contact" validate:"required"`
	Metadata    Metadata         `json:"metadata"`
}

// UserPreferences — каналы, разрешённые пользователем.
type UserPreferences struct {
	Email *bool `json:"email" validate:"required"`
	Push  bool  `json:"push"`
}

// UserContact — адреса доставки.
type UserContact struct {
	Email     string `json:"email"`
	PushToken string `json:"push_token"`
}

// Metadata — служебные данные конвейера.
type Metadata struct {
	// RetryCount — число неудачных попыток (начиная с 0).
	RetryCount int `json:"retry_count"`
}

// EmailEnabled сообщает, разрешил ли пользователь email-канал.
func (m NotificationMessage) EmailEnabled() bool {
	return m.Preferences != nil && m.Preferences.Email != nil && *m.Preferences.Email
}

// RecipientEmail возвращает адрес получателя или пустую строку.
func (m NotificationMessage) RecipientEmail() string {
	if m.Contact == nil {
		return ""
	}
	return m.Contact.Email
}

// NextAttempt возвращает копию сообщения с увеличенным RetryCount.
// Отрицательный счётчик сначала приводится к 0.
func (m NotificationMessage) NextAttempt() NotificationMessage {
	next := m
	next.Metadata.RetryCount = max(m.Metadata.RetryCount, 0) + 1
	return next
}

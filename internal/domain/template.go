package domain

// ResolvedTemplate — шаблон уведомления, готовый к заполнению.
//
// Subject и Body содержат плейсхолдеры вида {{var}}.
// Авторитетная копия живёт в сервисе шаблонов, здесь — кэшируемая проекция.
type ResolvedTemplate struct {
	// Code — уникальный код шаблона (например, "welcome").
	Code string `json:"code"`

	// Subject — тема письма.
	Subject string `json:"subject"`

	// Body — HTML тело письма.
	Body string `json:"body"`

	// Version — версия шаблона в сервисе шаблонов (0, если неизвестна).
	Version int `json:"version,omitempty"`
}

package orchestrator

import (
	"errors"

	"github.com/shaiso/Herald/internal/transport"
)

// Виды неудачной доставки. Consumer различает их через errors.Is.
var (
	// ErrInvalidRecipient — у пользователя нет адреса email. Повтор не поможет.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrTemplateNotFound — шаблона нет в источнике. Может появиться позже.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateLookup — источник шаблонов недоступен (временная ошибка).
	ErrTemplateLookup = errors.New("template lookup failed")

	// ErrTransportFailure — провайдер не принял письмо (временная ошибка).
	ErrTransportFailure = errors.New("transport failure")

	// ErrStatusWrite — не удалось записать статус. Не влияет на ack/nack.
	ErrStatusWrite = errors.New("status write failed")
)

// IsPermanent возвращает true для ошибок, которые не исправятся повтором.
// Письмо, отвергнутое проверкой transport.Email (например, шаблон дал
// пустое тело), при повторе отрисуется так же.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRecipient) || errors.Is(err, transport.ErrInvalidEmail)
}

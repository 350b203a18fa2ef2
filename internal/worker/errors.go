package worker

import "errors"

// Ошибки consumer'а.
var (
	// ErrMalformedMessage — тело сообщения не является корректным JSON.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidMessage — JSON корректен, но не проходит валидацию схемы.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRepublish — не удалось опубликовать копию в retry или dead-letter.
	ErrRepublish = errors.New("republish failed")
)

package worker

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Herald/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeMessage парсит и валидирует тело сообщения.
func decodeMessage(body []byte) (*domain.NotificationMessage, error) {
	var msg domain.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return &msg, nil
}

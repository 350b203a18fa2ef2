// Package templates разрешает код шаблона в domain.ResolvedTemplate.
//
// Store — источник истины (сервис шаблонов по HTTP или его база),
// Cache — cache-aside слой в Redis перед ним.
package templates

import (
	"context"
	"errors"

	"github.com/shaiso/Herald/internal/domain"
)

var (
	// ErrTemplateNotFound — шаблона с таким кодом нет (или он неактивен).
	ErrTemplateNotFound = errors.New("template not found")

	// ErrStoreUnavailable — источник шаблонов не ответил корректно.
	ErrStoreUnavailable = errors.New("template store unavailable")
)

// Store — операция чтения шаблона по коду.
// Отсутствие шаблона возвращается как ErrTemplateNotFound.
type Store interface {
	GetByCode(ctx context.Context, code string) (*domain.ResolvedTemplate, error)
}

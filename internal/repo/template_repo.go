package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/templates"
)

// TemplateRepo читает активные шаблоны напрямую из базы сервиса шаблонов.
//
// Используется вместо HTTP API сервиса шаблонов, когда TEMPLATE_SOURCE=postgres.
// Только чтение: запись и версионирование принадлежат сервису шаблонов.
type TemplateRepo struct {
	pool querier
}

// querier — подмножество pgxpool.Pool, нужное репозиторию.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// GetByCode возвращает активный шаблон по коду.
func (r *TemplateRepo) GetByCode(ctx context.Context, code string) (*domain.ResolvedTemplate, error) {
	query := `
		SELECT template_code, subject, content, version
		FROM templates
		WHERE template_code = $1 AND is_active = true
	`

	var tmpl domain.ResolvedTemplate
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&tmpl.Code,
		&tmpl.Subject,
		&tmpl.Body,
		&tmpl.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, code)
		}
		return nil, fmt.Errorf("%w: get template %s: %v", templates.ErrStoreUnavailable, code, err)
	}

	return &tmpl, nil
}

var _ templates.Store = (*TemplateRepo)(nil)

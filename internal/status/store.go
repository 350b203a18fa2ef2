// Package status хранит результат доставки каждого уведомления в Redis.
//
// Ключ notification:status:{id}, значение — JSON domain.DeliveryStatus,
// TTL фиксированный (по умолчанию 24 часа). Повторная запись перезаписывает
// предыдущую: это операционный аудит, а не система учёта.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Herald/internal/domain"
)

// DefaultTTL — срок хранения записи статуса.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "notification:status:"

var (
	// ErrWriteFailed — запись статуса в Redis не удалась.
	ErrWriteFailed = errors.New("status write failed")

	// ErrNotFound — записи нет (или истёк TTL).
	ErrNotFound = errors.New("status not found")

	// ErrInvalidStatus — неизвестное значение статуса.
	ErrInvalidStatus = errors.New("invalid status")
)

// Key возвращает ключ Redis для уведомления.
func Key(notificationID string) string {
	return keyPrefix + notificationID
}

// Store — Redis хранилище статусов.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

// NewStore создаёт Store. ttl <= 0 заменяется на DefaultTTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Put записывает статус уведомления, перезаписывая предыдущий.
// Пустой errText сохраняется как null.
func (s *Store) Put(ctx context.Context, notificationID string, status domain.Status, errText string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	record := domain.NewDeliveryStatus(notificationID, status, errText, s.now())

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrWriteFailed, err)
	}

	if err := s.client.Set(ctx, Key(notificationID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, notificationID, err)
	}

	return nil
}

// Get читает текущий статус уведомления.
func (s *Store) Get(ctx context.Context, notificationID string) (*domain.DeliveryStatus, error) {
	payload, err := s.client.Get(ctx, Key(notificationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, notificationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get status %s: %w", notificationID, err)
	}

	var record domain.DeliveryStatus
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", notificationID, err)
	}

	return &record, nil
}

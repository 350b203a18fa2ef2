package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/telemetry"
)

// DefaultCacheTTL — время жизни шаблона в кэше.
const DefaultCacheTTL = 2 * time.Hour

const keyPrefix = "template:"

// CacheKey возвращает ключ Redis для кода шаблона.
func CacheKey(code string) string {
	return keyPrefix + code
}

// Cache — cache-aside слой над Store.
//
// Попадание в кэш возвращается без обращения к Store. Промах идёт в Store,
// найденный шаблон записывается с TTL. Отсутствие шаблона не кэшируется:
// шаблон, созданный после промаха, будет найден на следующем вызове.
// Ошибки Redis логируются и не мешают вернуть шаблон.
type Cache struct {
	client  redis.Cmdable
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// CacheConfig — конфигурация Cache.
type CacheConfig struct {
	Client redis.Cmdable
	Store  Store

	// TTL — время жизни записи (default: 2h).
	TTL time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewCache создаёт Cache.
func NewCache(cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		client:  cfg.Client,
		store:   cfg.Store,
		ttl:     ttl,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Get возвращает шаблон по коду.
func (c *Cache) Get(ctx context.Context, code string) (*domain.ResolvedTemplate, error) {
	key := CacheKey(code)

	// 1. Кэш
	if tmpl, ok := c.lookup(ctx, key); ok {
		c.metrics.CacheLookup(telemetry.CacheHit)
		c.logger.Debug("template cache hit", "template_code", code)
		return tmpl, nil
	}
	c.metrics.CacheLookup(telemetry.CacheMiss)

	// 2. Источник истины
	tmpl, err := c.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			c.logger.Warn("template not found", "template_code", code)
		}
		return nil, err
	}
	if tmpl.Code == "" {
		tmpl.Code = code
	}

	// 3. Заполняем кэш — ошибки не блокируют ответ
	c.populate(ctx, key, tmpl)

	return tmpl, nil
}

// Invalidate удаляет шаблон из кэша (после обновления в сервисе шаблонов).
func (c *Cache) Invalidate(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, CacheKey(code)).Err(); err != nil {
		return fmt.Errorf("invalidate template %s: %w", code, err)
	}
	return nil
}

// lookup читает и декодирует запись. Любая ошибка — промах.
func (c *Cache) lookup(ctx context.Context, key string) (*domain.ResolvedTemplate, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.metrics.CacheLookup(telemetry.CacheError)
		c.logger.Error("template cache get failed", "key", key, "error", err)
		return nil, false
	}

	var tmpl domain.ResolvedTemplate
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		c.logger.Warn("corrupt template cache entry", "key", key, "error", err)
		return nil, false
	}

	return &tmpl, true
}

// populate записывает шаблон в кэш с TTL.
func (c *Cache) populate(ctx context.Context, key string, tmpl *domain.ResolvedTemplate) {
	payload, err := json.Marshal(tmpl)
	if err != nil {
		c.logger.Error("template cache marshal failed", "key", key, "error", err)
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.metrics.CacheLookup(telemetry.CacheError)
		c.logger.Error("template cache set failed", "key", key, "error", err)
	}
}

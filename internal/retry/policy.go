// Package retry вычисляет решение "повторить или сдаться" и рекомендуемую
// задержку перед повторной доставкой.
//
// Функции чистые: ничего не ждут и не планируют. Задержка — метаданные
// для retry-топологии брокера (очереди с TTL), см. пакет mq.
package retry

import "time"

// Параметры экспоненциальной задержки.
const (
	BaseDelay = 2 * time.Second
	MaxDelay  = 32 * time.Second

	// DefaultMaxRetries — максимум повторов по умолчанию.
	DefaultMaxRetries = 5

	// maxExponent ограничивает степень двойки, чтобы не было переполнения.
	maxExponent = 30
)

// ShouldRetry возвращает true, если после retryCount неудачных попыток
// ещё можно повторить. Отрицательный retryCount трактуется как 0.
func ShouldRetry(retryCount, maxRetries int) bool {
	return max(retryCount, 0) < maxRetries
}

// BackoffDelay возвращает min(BaseDelay * 2^retryCount, MaxDelay).
//
//	0 → 2s, 1 → 4s, 2 → 8s, 3 → 16s, 4+ → 32s
func BackoffDelay(retryCount int) time.Duration {
	exp := min(max(retryCount, 0), maxExponent)

	delay := BaseDelay * time.Duration(int64(1)<<exp)
	if delay <= 0 || delay > MaxDelay {
		return MaxDelay
	}
	return delay
}

// Tiers возвращает различные задержки для попыток 0..maxRetries-1
// в порядке возрастания. По ним объявляются retry-очереди.
func Tiers(maxRetries int) []time.Duration {
	var tiers []time.Duration
	for i := 0; i < maxRetries; i++ {
		d := BackoffDelay(i)
		if len(tiers) > 0 && tiers[len(tiers)-1] == d {
			continue
		}
		tiers = append(tiers, d)
	}
	return tiers
}

// Package telemetry обеспечивает наблюдаемость сервиса.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики конвейера доставки
//
// Метрики экспортируются на /metrics endpoint процесса.
package telemetry

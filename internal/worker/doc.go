// Package worker реализует consumer очереди email-уведомлений.
//
// # Обзор
//
// Worker получает NotificationMessage из очереди RabbitMQ, передаёт его
// Orchestrator и по результату решает судьбу сообщения. Ack происходит
// только после завершения обработки.
//
// # Решения по сообщению
//
//   - Некорректный JSON или схема → dead-letter, Orchestrator не вызывается
//   - Успех (delivered, skipped) → ack
//   - Постоянная ошибка (нет адреса получателя) → dead-letter
//   - Временная ошибка, retry_count < MaxRetries → копия с retry_count+1
//     в <exchange>.retry, задержка BackoffDelay(retry_count), оригинал nack
//   - Временная ошибка, retry_count >= MaxRetries → MarkFailed, dead-letter
//   - Не удалось опубликовать копию → nack с requeue
//
// # Параллелизм
//
// До Prefetch сообщений обрабатываются одновременно (mq.Consumer).
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
//
// # Остановка
//
// Stop отменяет подписку и ждёт обработчики не дольше ShutdownGrace.
// Неподтверждённые сообщения брокер доставит повторно.
package worker

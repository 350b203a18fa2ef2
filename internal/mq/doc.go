// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и setup-хуками
//   - topology.go   — exchanges, queues и bindings конвейера (main, retry, dlx)
//   - publisher.go  — публикация с publisher confirms
//   - consumer.go   — параллельное потребление с graceful shutdown
//
// Повторы реализованы очередями с TTL: копия сообщения публикуется в
// <exchange>.retry с routing key retry.<ms>, очередь <queue>.retry.<ms>
// держит её TTL миллисекунд и через dead-letter возвращает в основной
// exchange. Исчерпавшие попытки и некорректные сообщения публикуются в
// <exchange>.dlx и оседают в <queue>.dlq.
package mq

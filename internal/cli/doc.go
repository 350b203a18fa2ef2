// Package cli реализует операторскую утилиту Herald.
//
// # Обзор
//
// CLI работает напрямую с инфраструктурой конвейера: читает статусы
// доставки из Redis, сбрасывает кэш шаблонов и публикует тестовые
// уведомления в RabbitMQ.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: herald status ID --json | jq .
//
// ## Commands
//
//   - status ID...              — статусы доставки
//   - template invalidate CODE  — сброс шаблона из кэша
//   - send --template CODE ...  — публикация уведомления в очередь
//
// Фабрики команд принимают замыкания (StatusFn, PublisherFn и т.д.),
// которые открывают соединения лениво, после парсинга флагов.
package cli

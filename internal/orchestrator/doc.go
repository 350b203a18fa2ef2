// Package orchestrator содержит бизнес-логику доставки одного уведомления.
//
// Deliver проходит шаги:
//  1. Пользователь отключил email → статус skipped, успех.
//  2. Нет адреса → статус failed, ErrInvalidRecipient.
//  3. Шаблон через кэш → при отсутствии статус failed, ErrTemplateNotFound.
//  4. Заполнение subject/body переменными.
//  5. Отправка через transport.Sender → delivered или failed, ErrTransportFailure.
//
// Каждое сообщение завершается ровно одной записью статуса, и запись всегда
// следует за попыткой, которую описывает. Решение ack/retry/dead-letter
// принимает consumer (пакет worker), оркестратор только классифицирует исход.
package orchestrator

// Package mq публикует события Refinery в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchange refinery.events и очереди-подписки
//   - publisher.go  — публикация событий
//   - consumer.go   — чтение событий (команда refine events)
//
// Все события идут в topic exchange refinery.events. Routing key совпадает
// с типом события:
//   - project.created             — проект создан импортом
//   - project.operations_applied  — к проекту применён файл операций
//   - project.exported            — строки проекта экспортированы
//   - job.finished                — запуск задания завершён (успешно или нет)
package mq

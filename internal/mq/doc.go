// Package mq — транспорт RabbitMQ для распределённых цепочек.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация с подтверждением (publisher confirms)
//   - consumer.go   — потребление с ручным ack
//
// Типы сообщений:
//   - chain.step — шаг цепочки (цепочка + курсор), выполняет worker
//
// Exchanges:
//   - conveyor.chains — шаги цепочек
//   - conveyor.dlq    — dead letter
package mq

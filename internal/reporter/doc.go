// Package reporter доставляет события о статусах pipeline runs и задач.
//
// Движок видит Reporter как один логический приёмник. Разветвление на
// несколько приёмников (лог, журнал в БД, метрики, WebSocket) делает
// Multi. Ошибки приёмников логируются и никогда не возвращаются в
// выполнение задач.
package reporter

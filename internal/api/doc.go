// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (каталог pipeline, хранилище, submitter, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipelines
//   - run_handler.go      — обработчики для /runs и событий run
//
// API позволяет просматривать каталог pipeline, запускать runs и
// следить за их выполнением.
package api

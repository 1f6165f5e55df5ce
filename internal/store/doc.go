// Package store описывает хранилище результатов выполнения pipeline.
//
// Движок работает только с интерфейсами этого пакета:
//   - ResultStore — TaskResult и PipelineRun, агрегация статуса run
//   - LogStore    — журнал событий pipeline и задач
//   - ValueStore  — значения, которыми задачи обмениваются внутри run
//
// Memory — реализация в памяти для тестов и локального запуска.
// Реализация на Postgres находится в пакете repo.
package store

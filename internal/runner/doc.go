// Package runner выполняет pipeline одной из стратегий.
//
// Eager выполняет задачи синхронно в вызывающей горутине. Distributed
// строит последовательную цепочку executor.Chain и отправляет её
// исполнителю (локальному или RabbitMQ), не дожидаясь результата.
// Обе стратегии дают одинаковую последовательность финальных статусов
// задач для одного и того же pipeline и input.
//
// Submitter — точка входа: создаёт PipelineRun и PENDING-записи задач,
// затем запускает выбранную стратегию (по одному run на итерацию).
package runner

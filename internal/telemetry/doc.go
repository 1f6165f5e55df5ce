// Package telemetry содержит логирование и метрики Conveyor.
//
// Логгер процесса настраивается через LOG_LEVEL и LOG_FORMAT, а
// поля pipeline_id, run_id и pipeline_task добавляются хелперами
// WithRun и WithTask. API кладёт логгер запроса в контекст, его
// достаёт FromContext.
//
// Метрики регистрируются через promauto при импорте пакета и
// отдаются на /metrics каждого процесса.
package telemetry

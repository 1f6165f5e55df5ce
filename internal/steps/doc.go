// Package steps содержит встроенные реализации задач.
//
// # Задачи
//
//   - Wait — пауза; поддерживает отмену через context
//   - SaveMessage / EchoMessage — пара задач, передающих сообщение через
//     хранилище значений run
//   - HTTPRequest — HTTP запрос к внешнему API
//   - Transform — рендер Go templates по значениям run
//   - Fail — всегда завершается ошибкой (отладка отмены)
//
// Все реализации регистрируются в task.Registry через Register:
//
//	reg := task.NewRegistry()
//	ids, err := steps.Register(reg)
//
// # Шаблоны
//
// HTTPRequest (url, headers, body) и Transform (mappings) рендерят
// строки через text/template. Доступные данные:
//
//	{{ .PipelineID }}  {{ .RunID }}  {{ .Iteration }}
//	{{ value "message" }}   — значение из хранилища run
//	{{ env "HOME" }}        — переменная окружения
//
// # Обработка ошибок
//
// Задачи возвращают ошибки, жизненный цикл task.Task превращает их в
// RUNTIME_ERROR. Повторов нет.
package steps

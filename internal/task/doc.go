// Package task описывает контракт задачи pipeline и реестр реализаций.
//
// Задача — единица работы с типизированной конфигурацией, типизированным
// input и методом Run. Жизненный цикл (Start) валидирует input,
// сохраняет статусы в store.ResultStore и отправляет события в
// reporter.Reporter. Любая ошибка задачи превращается в статус и
// никогда не выходит за пределы Start.
//
// Реализация регистрируется явно, один раз при старте процесса:
//
//	reg := task.NewRegistry()
//	id, err := reg.Register(steps.Wait{})
//	...
//	reg.Seal()
package task

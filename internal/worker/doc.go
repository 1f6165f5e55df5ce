// Package worker выполняет распределённые цепочки pipeline.
//
// # Обзор
//
// Worker потребляет шаги цепочек из очереди chains.steps. Каждое
// сообщение несёт всю цепочку и индекс элемента, который нужно
// выполнить. Worker выполняет элемент через executor.Advance и, если
// цепочка не завершена, публикует следующий шаг.
//
// Поэтому элементы одной цепочки выполняются строго последовательно,
// даже когда несколько воркеров потребляют одну очередь.
//
// # Ошибки
//
//   - Ошибка элемента цепочки уже обработана обработчиками ошибок
//     (task.report, pipeline.fail): сообщение подтверждается.
//   - Ошибка публикации следующего шага возвращается consumer'у:
//     сообщение возвращается в очередь один раз, затем уходит в DLQ.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Conn:      conn,
//	    Handlers:  dist.Handlers(),
//	    Publisher: publisher,
//	    Logger:    logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// Handlers берутся у runner.Distributed, построенного на том же
// каталоге pipeline, что и у API.
package worker

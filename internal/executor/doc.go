// Package executor выполняет асинхронные цепочки элементов работы.
//
// Chain — строго последовательный список Item. Каждый элемент
// выполняется зарегистрированным Handler по своему Kind. При первой
// ошибке вызывается обработчик ошибки элемента (Item.OnError), затем
// обработчик цепочки (Chain.OnError) со списком невыполненных
// элементов; остальные элементы не выполняются.
//
// Реализации:
//   - Local — горутина в текущем процессе
//   - AMQP  — одно сообщение RabbitMQ на шаг цепочки; шаги выполняет
//     worker (см. internal/worker), который вызывает Advance
//
// Элементы сериализуются в JSON, поэтому Args — обычная структура,
// а не замыкание.
package executor

// Package engine строит план выполнения pipeline.
//
// Включает:
//   - graph.go  — граф зависимостей задач и топологическая сортировка
//   - errors.go — ошибки валидации графа
//
// Engine ничего не знает о конкретных задачах: узел графа — любой тип
// с именем и списком родителей. Все ошибки графа обнаруживаются до
// запуска первой задачи.
package engine

// Package pipeline собирает определения pipeline из задач реестра.
//
// Spec — декларативное описание (id, задачи, их типы и конфигурации,
// значения по умолчанию, итерации). Build превращает его в Definition:
// конфигурации провалидированы, граф проверен, порядок выполнения
// вычислен. Ошибка на любом шаге означает, что pipeline не собран.
package pipeline

// Package repo реализует хранилище результатов на PostgreSQL (pgx).
//
// Store собирает репозитории runs, результатов задач, журнала событий
// и значений в store.Store. Схема создаётся EnsureSchema при старте.
package repo

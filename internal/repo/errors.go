package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Conveyor/internal/store"
)

// Ошибки репозиториев совпадают с ошибками store, чтобы вызывающий код
// не зависел от реализации хранилища.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = store.ErrNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = store.ErrAlreadyExists

	// ErrInvalidTransition — недопустимый переход статуса.
	ErrInvalidTransition = store.ErrInvalidTransition
)

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

package task

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry — соответствие идентификатора задачи её реализации.
//
// Заполняется один раз при старте процесса и закрывается Seal.
// После этого используется только на чтение.
type Registry struct {
	mu     sync.RWMutex
	impls  map[string]Implementation
	sealed bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[string]Implementation)}
}

// IdentifierOf возвращает идентификатор реализации:
// путь пакета и имя типа, например
// "github.com/shaiso/Conveyor/internal/steps.Wait".
func IdentifierOf(impl Implementation) (string, error) {
	rt := reflect.TypeOf(impl)
	if rt == nil {
		return "", ErrAnonymousType
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" || rt.PkgPath() == "" {
		return "", fmt.Errorf("%w: %s", ErrAnonymousType, rt)
	}
	return rt.PkgPath() + "." + rt.Name(), nil
}

// Register регистрирует реализацию под идентификатором IdentifierOf.
//
// Повторная регистрация того же типа ничего не меняет. Другой тип
// под тем же идентификатором — ErrAlreadyRegistered.
func (r *Registry) Register(impl Implementation) (string, error) {
	id, err := IdentifierOf(impl)
	if err != nil {
		return "", err
	}
	return id, r.RegisterAs(id, impl)
}

// RegisterAs регистрирует реализацию под явным идентификатором.
func (r *Registry) RegisterAs(id string, impl Implementation) error {
	if id == "" {
		return fmt.Errorf("task identifier is required")
	}
	if impl == nil {
		return fmt.Errorf("task %s: implementation is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: %s", ErrRegistrySealed, id)
	}
	if existing, ok := r.impls[id]; ok {
		if reflect.TypeOf(existing) == reflect.TypeOf(impl) {
			return nil
		}
		return fmt.Errorf("%w: %s (%T, %T)", ErrAlreadyRegistered, id, existing, impl)
	}
	r.impls[id] = impl
	return nil
}

// MustRegister — Register, паникующий при ошибке.
func (r *Registry) MustRegister(impl Implementation) string {
	id, err := r.Register(impl)
	if err != nil {
		panic(err)
	}
	return id
}

// Resolve возвращает реализацию по идентификатору.
func (r *Registry) Resolve(id string) (Implementation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.impls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return impl, nil
}

// Has проверяет, зарегистрирован ли идентификатор.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.impls[id]
	return ok
}

// IDs возвращает отсортированный список идентификаторов.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.impls))
	for id := range r.impls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Seal закрывает реестр для регистрации.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed сообщает, закрыт ли реестр.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

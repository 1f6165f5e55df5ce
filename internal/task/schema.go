package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate — общий валидатор struct-тегов `validate:"..."`.
// Поля в ошибках называются по JSON-тегам.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if f.Anonymous {
			return f.Name
		}
		name, _ := jsonName(f)
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode заполняет target (указатель на структуру) из raw.
//
// Правила схемы:
//   - каждое JSON-поле без omitempty обязано присутствовать в raw
//   - значения должны совпадать по типу с полями структуры
//   - ограничения из тегов validate проверяются после декодирования
func decode(raw map[string]any, target any) error {
	if raw == nil {
		raw = map[string]any{}
	}

	rt := reflect.TypeOf(target)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("schema target must be a pointer to struct, got %T", target)
	}

	if missing := missingFields(raw, rt.Elem()); len(missing) > 0 {
		return &SchemaError{Fields: missing}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw data: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &SchemaError{Fields: []FieldError{{
				Field:   typeErr.Field,
				Problem: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}}}
		}
		return fmt.Errorf("decode: %w", err)
	}

	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, len(verrs))
			for i, fe := range verrs {
				fields[i] = FieldError{
					Field:   jsonPath(rt.Elem(), fe.Namespace()),
					Problem: "failed on '" + fe.Tag() + "'",
				}
			}
			return &SchemaError{Fields: fields}
		}
		return err
	}

	return nil
}

// missingFields возвращает обязательные поля, отсутствующие в raw.
// Встроенные структуры (BaseConfig) проверяются на том же уровне.
func missingFields(raw map[string]any, rt reflect.Type) []FieldError {
	var missing []FieldError
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			missing = append(missing, missingFields(raw, f.Type)...)
			continue
		}
		if !f.IsExported() {
			continue
		}

		name, optional := jsonName(f)
		if name == "-" || optional {
			continue
		}
		if _, ok := raw[name]; !ok {
			missing = append(missing, FieldError{Field: name, Problem: "field required"})
		}
	}
	return missing
}

// jsonName возвращает JSON-имя поля и признак omitempty.
func jsonName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name, false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			return name, true
		}
	}
	return name, false
}

// jsonPath переводит namespace валидатора ("WaitConfig.BaseConfig.parents[0]")
// в путь JSON ("parents[0]"): корень и встроенные структуры опускаются,
// их поля в JSON лежат на том же уровне.
func jsonPath(rt reflect.Type, namespace string) string {
	segments := strings.Split(namespace, ".")[1:]
	path := make([]string, 0, len(segments))
	for _, seg := range segments {
		name := seg
		if i := strings.IndexByte(seg, '['); i >= 0 {
			name = seg[:i]
		}

		f, ok := fieldByName(rt, name)
		if ok && f.Anonymous {
			rt = elem(f.Type)
			continue
		}
		path = append(path, seg)
		if ok {
			rt = elem(f.Type)
		}
	}
	return strings.Join(path, ".")
}

// fieldByName ищет поле по имени из namespace: JSON-имя или имя
// встроенной структуры.
func fieldByName(rt reflect.Type, name string) (reflect.StructField, bool) {
	if rt == nil || rt.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous {
			if f.Name == name {
				return f, true
			}
			continue
		}
		if jn, _ := jsonName(f); jn == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// elem снимает указатели и контейнеры до типа элемента.
func elem(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		default:
			return t
		}
	}
}

// toMap превращает провалидированную структуру обратно в map для хранения.
func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

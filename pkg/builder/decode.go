package builder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/marshallshelly/pebble-record/pkg/registry"
)

// Decode maps records onto po-tagged structs. Loaded relations are decoded
// into the fields tagged with the relation name.
func Decode[T any](records []*Record) ([]T, error) {
	out := make([]T, len(records))
	for i, r := range records {
		if err := decodeInto(reflect.ValueOf(&out[i]).Elem(), r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeOne maps a single record onto a po-tagged struct. A nil record yields nil.
func DecodeOne[T any](r *Record) (*T, error) {
	if r == nil {
		return nil, nil
	}
	out := new(T)
	if err := decodeInto(reflect.ValueOf(out).Elem(), r); err != nil {
		return nil, err
	}
	return out, nil
}

func registryOf(r *Record) *registry.Registry {
	if r.model != nil && r.model.db != nil {
		return r.model.db.registry
	}
	return registry.Default()
}

func decodeInto(dst reflect.Value, r *Record) error {
	for dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	parsed, err := registryOf(r).ParseType(dst.Type())
	if err != nil {
		return err
	}

	for col, index := range parsed.Columns {
		v, ok := r.attrs[col]
		if !ok {
			continue
		}
		if err := assign(dst.FieldByIndex(index), v); err != nil {
			return fmt.Errorf("field %s: %w", col, err)
		}
	}

	for name, index := range parsed.Relations {
		loaded, ok := r.relations[name]
		if !ok {
			continue
		}
		field := dst.FieldByIndex(index)
		switch v := loaded.(type) {
		case []*Record:
			if field.Kind() != reflect.Slice {
				return fmt.Errorf("relation %s: field must be a slice, got %s", name, field.Type())
			}
			slice := reflect.MakeSlice(field.Type(), len(v), len(v))
			for i, child := range v {
				if err := decodeInto(slice.Index(i), child); err != nil {
					return fmt.Errorf("relation %s: %w", name, err)
				}
			}
			field.Set(slice)
		case *Record:
			if v == nil {
				field.SetZero()
				continue
			}
			if err := decodeInto(field, v); err != nil {
				return fmt.Errorf("relation %s: %w", name, err)
			}
		}
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// assign stores v into field, converting between compatible types.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.SetZero()
		return nil
	}

	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(field.Type()):
		field.Set(src)
		return nil
	case field.Type() == timeType:
		return fmt.Errorf("cannot assign %T to time.Time", v)
	case src.Type().ConvertibleTo(field.Type()) && convertible(src.Kind(), field.Kind()):
		field.Set(src.Convert(field.Type()))
		return nil
	}

	// JSON columns arrive as maps and slices; round-trip them into the field type.
	switch src.Kind() {
	case reflect.Map, reflect.Slice:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, field.Addr().Interface())
	}
	return fmt.Errorf("cannot assign %T to %s", v, field.Type())
}

// convertible excludes conversions that compile but change meaning, such
// as int to string.
func convertible(from, to reflect.Kind) bool {
	isNumber := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	switch {
	case isNumber(from) && isNumber(to):
		return true
	case isNumber(from) || isNumber(to):
		return false
	}
	return true
}

package builder

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/marshallshelly/pebble-record/pkg/schema"
)

// RelationNotFoundError is returned when a relation name is not declared on a model.
type RelationNotFoundError struct {
	Table    string
	Relation string
}

// Error implements the error interface.
func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %s not found on table %s", e.Relation, e.Table)
}

// loadRelation attaches relation name to every record with a single query
// on the related table.
func (m *Model) loadRelation(ctx context.Context, records []*Record, name string) error {
	rel, ok := m.schema.Relation(name)
	if !ok {
		return &RelationNotFoundError{Table: m.schema.Table, Relation: name}
	}
	if len(records) == 0 {
		return nil
	}

	related, err := m.db.Model(rel.Table)
	if err != nil {
		return fmt.Errorf("relation %s: %w", name, err)
	}

	var keys []any
	seen := make(map[string]bool)
	for _, r := range records {
		if rel.Many() {
			r.relations[name] = []*Record{}
		} else {
			r.relations[name] = (*Record)(nil)
		}

		v := r.attrs[rel.LocalKey]
		if v == nil {
			continue
		}
		k := keyOf(v)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, v)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	children, err := related.Query().WhereIn(rel.ForeignKey, keys).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load relation %s: %w", name, err)
	}

	grouped := make(map[string][]*Record, len(children))
	for _, c := range children {
		k := keyOf(c.attrs[rel.ForeignKey])
		grouped[k] = append(grouped[k], c)
	}

	for _, r := range records {
		v := r.attrs[rel.LocalKey]
		if v == nil {
			continue
		}
		matches := grouped[keyOf(v)]
		attach(r, rel, matches)
	}
	return nil
}

func attach(r *Record, rel schema.Relation, matches []*Record) {
	if rel.Many() {
		if matches != nil {
			r.relations[rel.Name] = matches
		}
		return
	}
	if len(matches) > 0 {
		r.relations[rel.Name] = matches[0]
	}
}

// keyOf renders a key value so that equal keys of different Go types,
// such as int32 and int64 ids or a UUID as bytes and as text, compare equal.
func keyOf(v any) string {
	switch k := v.(type) {
	case string:
		if u, err := uuid.Parse(k); err == nil {
			return u.String()
		}
		return k
	case []byte:
		return string(k)
	case [16]byte:
		return uuid.UUID(k).String()
	case uuid.UUID:
		return k.String()
	case fmt.Stringer:
		return k.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return ""
		}
		return keyOf(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

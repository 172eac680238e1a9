package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the semantic type of a column.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeTime    FieldType = "time"
	TypeUUID    FieldType = "uuid"
	TypeJSON    FieldType = "json"
	TypeBytes   FieldType = "bytes"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	rawJSONType = reflect.TypeOf(json.RawMessage{})
)

// TypeOf maps a Go type to a FieldType. Pointers are dereferenced and
// reported as nullable.
func TypeOf(t reflect.Type) (ft FieldType, nullable bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		nullable = true
	}

	switch t {
	case timeType:
		return TypeTime, nullable
	case uuidType:
		return TypeUUID, nullable
	case rawJSONType:
		return TypeJSON, nullable
	}

	switch t.Kind() {
	case reflect.Bool:
		return TypeBoolean, nullable
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger, nullable
	case reflect.Float32, reflect.Float64:
		return TypeFloat, nullable
	case reflect.String:
		return TypeString, nullable
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBytes, true
		}
		return TypeJSON, true
	case reflect.Map, reflect.Struct, reflect.Interface:
		return TypeJSON, true
	}
	return TypeString, nullable
}

// TypeOfSQL maps a PostgreSQL type name such as "varchar(255)" or
// "timestamptz" to a FieldType. Unknown names map to TypeString.
func TypeOfSQL(sqlType string) FieldType {
	name := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}

	switch name {
	case "smallint", "integer", "int", "int2", "int4", "int8", "bigint", "serial", "bigserial", "smallserial":
		return TypeInteger
	case "numeric", "decimal", "real", "double precision", "float4", "float8":
		return TypeFloat
	case "boolean", "bool":
		return TypeBoolean
	case "date", "time", "timestamp", "timestamptz":
		return TypeTime
	case "uuid":
		return TypeUUID
	case "json", "jsonb":
		return TypeJSON
	case "bytea":
		return TypeBytes
	}
	return TypeString
}

// IsSQLType reports whether name is a PostgreSQL type name recognised in tags.
func IsSQLType(name string) bool {
	base := strings.ToLower(name)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	return TypeOfSQL(base) != TypeString || base == "text" || base == "varchar" || base == "char"
}

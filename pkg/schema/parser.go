package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/go-openapi/inflect"
)

// Tabler lets a model type choose its table name.
type Tabler interface {
	TableName() string
}

// Parser extracts schemas from tagged Go structs and caches the result per type.
type Parser struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*Parsed
}

// Parsed is the schema of a struct type together with the field index of
// every column and relation, used to decode records into values of that type.
type Parsed struct {
	Schema    *Schema
	Columns   map[string][]int
	Relations map[string][]int
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{cache: make(map[reflect.Type]*Parsed)}
}

// Parse extracts the schema of modelType.
func (p *Parser) Parse(modelType reflect.Type) (*Parsed, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	p.mu.RLock()
	cached, ok := p.cache[modelType]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	parsed := &Parsed{
		Columns:   make(map[string][]int),
		Relations: make(map[string][]int),
	}
	var specs []FieldSpec
	collectFields(modelType, nil, &specs, parsed)

	s, err := Build(TableNameOf(modelType), specs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", modelType.Name(), err)
	}
	parsed.Schema = s

	p.mu.Lock()
	p.cache[modelType] = parsed
	p.mu.Unlock()
	return parsed, nil
}

// collectFields walks exported fields, descending into embedded structs.
func collectFields(t reflect.Type, index []int, specs *[]FieldSpec, parsed *Parsed) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldIndex := append(append([]int(nil), index...), i)

		tag := field.Tag.Get(StructTagKey)
		if field.Anonymous && tag == "" && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, fieldIndex, specs, parsed)
			continue
		}
		if tag == "" || tag == "-" {
			continue
		}

		ft, nullable := TypeOf(field.Type)
		*specs = append(*specs, FieldSpec{
			GoName:   field.Name,
			Type:     ft,
			Nullable: nullable,
			Tag:      tag,
			Rules:    field.Tag.Get(RulesTagKey),
		})
		if opts, err := ParseTag(tag); err == nil {
			if _, isRelation := opts.RelationKind(); isRelation {
				parsed.Relations[opts.Name] = fieldIndex
			} else {
				parsed.Columns[opts.Name] = fieldIndex
			}
		}
	}
}

// TableNameOf returns the table name of a struct type: its TableName method
// when it has one, otherwise the pluralized snake_case type name.
func TableNameOf(modelType reflect.Type) string {
	if t, ok := reflect.New(modelType).Interface().(Tabler); ok {
		return t.TableName()
	}
	if t, ok := reflect.Zero(modelType).Interface().(Tabler); ok {
		return t.TableName()
	}
	return inflect.Tableize(modelType.Name())
}

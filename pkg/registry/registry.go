// Package registry provides a central schema registry keyed by table name.
package registry

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/marshallshelly/pebble-record/pkg/schema"
)

// Registry is a thread-safe registry of table schemas.
type Registry struct {
	mu     sync.RWMutex
	parser *schema.Parser
	types  map[reflect.Type]*schema.Parsed
	names  map[string]*schema.Schema
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		parser: schema.NewParser(),
		types:  make(map[reflect.Type]*schema.Parsed),
		names:  make(map[string]*schema.Schema),
	}
}

// Register registers a schema under its table name, normalizing it first.
// Registering a second schema for the same table replaces the first.
func (r *Registry) Register(s *schema.Schema) error {
	if s == nil {
		return fmt.Errorf("schema cannot be nil")
	}
	if err := s.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	r.names[s.Table] = s
	r.mu.Unlock()
	return nil
}

// RegisterModel parses a tagged struct and registers its schema.
func (r *Registry) RegisterModel(model any) error {
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}
	_, err := r.ParseType(reflect.TypeOf(model))
	return err
}

// ParseType parses and registers modelType, returning the field layout used
// to decode records into it. Already registered types are returned as is.
func (r *Registry) ParseType(modelType reflect.Type) (*schema.Parsed, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	parsed, ok := r.types[modelType]
	r.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := r.parser.Parse(modelType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.types[modelType] = parsed
	if _, exists := r.names[parsed.Schema.Table]; !exists {
		r.names[parsed.Schema.Table] = parsed.Schema
	}
	r.mu.Unlock()
	return parsed, nil
}

// Get retrieves a schema by table name.
func (r *Registry) Get(table string) (*schema.Schema, error) {
	r.mu.RLock()
	s, ok := r.names[table]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("table %s not registered", table)
	}
	return s, nil
}

// Has checks if a table name is registered.
func (r *Registry) Has(table string) bool {
	r.mu.RLock()
	_, ok := r.names[table]
	r.mu.RUnlock()
	return ok
}

// Names returns the registered table names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// All returns every registered schema ordered by table name.
func (r *Registry) All() []*schema.Schema {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]*schema.Schema, 0, len(names))
	for _, name := range names {
		if s, ok := r.names[name]; ok {
			schemas = append(schemas, s)
		}
	}
	return schemas
}

// Clear removes all registered schemas.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types = make(map[reflect.Type]*schema.Parsed)
	r.names = make(map[string]*schema.Schema)
}

// globalRegistry is the default global registry instance.
var globalRegistry = NewRegistry()

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}

// Register registers a schema in the global registry.
func Register(s *schema.Schema) error {
	return globalRegistry.Register(s)
}

// RegisterModel registers a tagged struct in the global registry.
func RegisterModel(model any) error {
	return globalRegistry.RegisterModel(model)
}

// Get retrieves a schema from the global registry.
func Get(table string) (*schema.Schema, error) {
	return globalRegistry.Get(table)
}

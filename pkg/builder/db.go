// Package builder provides the fluent query builder and the record
// persistence layer on top of runtime.DB.
package builder

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/marshallshelly/pebble-record/pkg/registry"
	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/schema"
	"github.com/marshallshelly/pebble-record/pkg/validation"
)

// DB binds a statement executor to a schema registry.
type DB struct {
	db       *runtime.DB
	registry *registry.Registry
	now      func() time.Time

	mu     sync.Mutex
	models map[string]*Model
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the time source used for timestamps and soft deletes.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// New creates a new query builder DB. A nil registry means the global one.
func New(db *runtime.DB, reg *registry.Registry, opts ...Option) *DB {
	if reg == nil {
		reg = registry.Default()
	}
	d := &DB{
		db:       db,
		registry: reg,
		now:      time.Now,
		models:   make(map[string]*Model),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Runtime returns the underlying runtime.DB.
func (d *DB) Runtime() *runtime.DB {
	return d.db
}

// Registry returns the schema registry.
func (d *DB) Registry() *registry.Registry {
	return d.registry
}

// Hook runs around a record lifecycle event. A non-nil error aborts the operation.
type Hook func(ctx context.Context, r *Record) error

// Hooks are the lifecycle hooks of a model.
type Hooks struct {
	BeforeSave   Hook
	AfterSave    Hook
	BeforeDelete Hook
	AfterDelete  Hook
}

// ModelOption configures a model when it is defined.
type ModelOption func(*Model)

// WithHooks sets the lifecycle hooks of a model.
func WithHooks(h Hooks) ModelOption {
	return func(m *Model) { m.hooks = h }
}

// WithCallback registers a named callback for the callback validation rule.
func WithCallback(name string, cb validation.Callback) ModelOption {
	return func(m *Model) { m.callbacks[name] = cb }
}

// Define registers s and binds a model to it, replacing any previous model for the same table.
func (d *DB) Define(s *schema.Schema, opts ...ModelOption) (*Model, error) {
	if err := d.registry.Register(s); err != nil {
		return nil, err
	}
	m := newModel(d, s)
	for _, opt := range opts {
		opt(m)
	}

	d.mu.Lock()
	d.models[s.Table] = m
	d.mu.Unlock()
	return m, nil
}

// DefineStruct registers the schema of a po-tagged struct and binds a model to it.
func (d *DB) DefineStruct(model any, opts ...ModelOption) (*Model, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	parsed, err := d.registry.ParseType(reflect.TypeOf(model))
	if err != nil {
		return nil, err
	}
	return d.Define(parsed.Schema, opts...)
}

// Model returns the model bound to table. Tables registered without Define
// get a model with no hooks.
func (d *DB) Model(table string) (*Model, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.models[table]; ok {
		return m, nil
	}
	s, err := d.registry.Get(table)
	if err != nil {
		return nil, err
	}
	m := newModel(d, s)
	d.models[table] = m
	return m, nil
}

// MustModel is like Model but panics when the table is not registered.
func (d *DB) MustModel(table string) *Model {
	m, err := d.Model(table)
	if err != nil {
		panic(err)
	}
	return m
}

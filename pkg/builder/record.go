package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/schema"
	"github.com/marshallshelly/pebble-record/pkg/validation"
)

// Record is one row of a model's table: its column values, the relations
// loaded onto it and the values last read from or written to the database.
// A Record is not safe for concurrent mutation.
type Record struct {
	model     *Model
	attrs     map[string]any
	original  map[string]any
	relations map[string]any
	exists    bool
	errors    validation.Errors
}

func newRecord(m *Model, attrs map[string]any, exists bool) *Record {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	for k, v := range attrs {
		attrs[k] = fromDriver(v)
	}
	r := &Record{model: m, attrs: attrs, relations: make(map[string]any), exists: exists}
	if exists {
		r.original = maps.Clone(attrs)
	}
	return r
}

// fromDriver turns driver values that do not survive JSON into their
// canonical Go type. pgx decodes uuid columns into [16]byte.
func fromDriver(v any) any {
	if b, ok := v.([16]byte); ok {
		return uuid.UUID(b)
	}
	return v
}

// Model returns the record's model.
func (r *Record) Model() *Model {
	return r.model
}

// Exists reports whether the record is backed by a row.
func (r *Record) Exists() bool {
	return r.exists
}

// Key returns the primary key value, or nil for a transient record.
func (r *Record) Key() any {
	return r.attrs[r.model.schema.PrimaryKey]
}

// Get returns an attribute, or a loaded relation when no attribute has that name.
func (r *Record) Get(field string) any {
	if v, ok := r.attrs[field]; ok {
		return v
	}
	return r.relations[field]
}

// Set assigns an attribute without the fillable check.
func (r *Record) Set(field string, value any) *Record {
	r.attrs[field] = value
	return r
}

// Attributes returns a copy of the column values.
func (r *Record) Attributes() map[string]any {
	return maps.Clone(r.attrs)
}

// IsFillable reports whether Fill may assign field.
func (r *Record) IsFillable(field string) bool {
	return r.model.schema.IsFillable(field)
}

// Fill assigns every fillable field and silently skips the rest.
func (r *Record) Fill(fields map[string]any) *Record {
	for k, v := range fields {
		if r.IsFillable(k) {
			r.attrs[k] = v
		}
	}
	return r
}

// Dirty returns the attributes that differ from the last synced values.
func (r *Record) Dirty() map[string]any {
	dirty := make(map[string]any)
	for k, v := range r.attrs {
		old, ok := r.original[k]
		if !ok || !reflect.DeepEqual(old, v) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty reports whether any of fields changed, or any attribute when fields is empty.
func (r *Record) IsDirty(fields ...string) bool {
	dirty := r.Dirty()
	if len(fields) == 0 {
		return len(dirty) > 0
	}
	for _, f := range fields {
		if _, ok := dirty[f]; ok {
			return true
		}
	}
	return false
}

// Relation returns a loaded relation: []*Record for hasMany, *Record (possibly nil) otherwise.
func (r *Record) Relation(name string) (any, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// Many returns a loaded hasMany relation.
func (r *Record) Many(name string) []*Record {
	v, _ := r.relations[name].([]*Record)
	return v
}

// One returns a loaded hasOne or belongsTo relation.
func (r *Record) One(name string) *Record {
	v, _ := r.relations[name].(*Record)
	return v
}

func (r *Record) sync() {
	r.original = maps.Clone(r.attrs)
	r.exists = true
}

// columns returns the attribute names written by Save, sorted. When the
// schema declares columns, other attributes are left out.
func (r *Record) columns(includeKey bool) []string {
	s := r.model.schema
	var cols []string
	for k := range r.attrs {
		if k == s.PrimaryKey && !includeKey {
			continue
		}
		if s.HasDeclaredColumns() && !s.HasColumn(k) {
			continue
		}
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func (r *Record) runHook(ctx context.Context, h Hook) error {
	if h == nil {
		return nil
	}
	return h(ctx, r)
}

// Save inserts the record when it has no primary key and updates the row
// with that key otherwise, including a key assigned with Set on a new
// record. Timestamps are maintained when the schema enables them.
func (r *Record) Save(ctx context.Context) error {
	if err := r.runHook(ctx, r.model.hooks.BeforeSave); err != nil {
		return err
	}

	var err error
	if r.Key() != nil {
		err = r.update(ctx)
	} else {
		err = r.insert(ctx)
	}
	if err != nil {
		return err
	}

	r.sync()
	return r.runHook(ctx, r.model.hooks.AfterSave)
}

func (r *Record) insert(ctx context.Context) error {
	s := r.model.schema
	now := r.model.db.now()
	if s.TracksCreatedAt() {
		r.attrs[s.CreatedAt] = now
	}
	if s.TracksUpdatedAt() {
		r.attrs[s.UpdatedAt] = now
	}
	if r.Key() == nil {
		delete(r.attrs, s.PrimaryKey)
		if s.KeyStrategy == schema.KeyUUID {
			r.attrs[s.PrimaryKey] = uuid.New()
		}
	}

	cols := r.columns(true)
	if err := r.checkColumns(cols); err != nil {
		return err
	}
	sql, args := r.model.insertSQL(cols, r.attrs)
	id, err := r.model.db.db.QueryValue(ctx, sql, args)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("insert into %s returned no primary key: %w", s.Table, err)
		}
		return err
	}
	r.attrs[s.PrimaryKey] = fromDriver(id)
	return nil
}

func (r *Record) update(ctx context.Context) error {
	s := r.model.schema
	if s.TracksUpdatedAt() {
		r.attrs[s.UpdatedAt] = r.model.db.now()
	}

	cols := r.columns(false)
	if len(cols) == 0 {
		return nil
	}
	if err := r.checkColumns(cols); err != nil {
		return err
	}
	sql, args := r.model.updateSQL(cols, r.attrs, r.Key())
	_, err := r.model.db.db.Exec(ctx, sql, args)
	return err
}

func (r *Record) checkColumns(cols []string) error {
	for _, c := range cols {
		if err := r.model.schema.CheckColumn(c); err != nil {
			return err
		}
	}
	return nil
}

// Delete soft deletes the record when the schema enables soft delete and
// removes the row otherwise.
func (r *Record) Delete(ctx context.Context) error {
	if r.model.schema.SoftDelete {
		return r.SoftDelete(ctx)
	}
	return r.ForceDelete(ctx)
}

// SoftDelete stamps the deleted-at column.
func (r *Record) SoftDelete(ctx context.Context) error {
	s := r.model.schema
	if !s.SoftDelete {
		return &runtime.FeatureDisabledError{Table: s.Table, Feature: "soft delete"}
	}
	if r.Key() == nil {
		return runtime.ErrNoPrimaryKey
	}
	if err := r.runHook(ctx, r.model.hooks.BeforeDelete); err != nil {
		return err
	}

	now := r.model.db.now()
	sql := fmt.Sprintf("UPDATE %s SET %s = @deleted_at WHERE %s = @pk", s.Table, s.DeletedAt, s.PrimaryKey)
	if _, err := r.model.db.db.Exec(ctx, sql, pgx.NamedArgs{"deleted_at": now, "pk": r.Key()}); err != nil {
		return err
	}
	r.attrs[s.DeletedAt] = now
	r.syncField(s.DeletedAt)

	return r.runHook(ctx, r.model.hooks.AfterDelete)
}

// ForceDelete removes the row even when soft delete is enabled.
func (r *Record) ForceDelete(ctx context.Context) error {
	if r.Key() == nil {
		return runtime.ErrNoPrimaryKey
	}
	if err := r.runHook(ctx, r.model.hooks.BeforeDelete); err != nil {
		return err
	}

	if _, err := r.model.Delete(ctx, r.Key()); err != nil {
		return err
	}
	r.exists = false
	r.original = nil

	return r.runHook(ctx, r.model.hooks.AfterDelete)
}

// Restore clears the deleted-at column.
func (r *Record) Restore(ctx context.Context) error {
	s := r.model.schema
	if !s.SoftDelete {
		return &runtime.FeatureDisabledError{Table: s.Table, Feature: "restore"}
	}
	if r.Key() == nil {
		return runtime.ErrNoPrimaryKey
	}

	sql := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = @pk", s.Table, s.DeletedAt, s.PrimaryKey)
	if _, err := r.model.db.db.Exec(ctx, sql, pgx.NamedArgs{"pk": r.Key()}); err != nil {
		return err
	}
	r.attrs[s.DeletedAt] = nil
	r.syncField(s.DeletedAt)
	return nil
}

func (r *Record) syncField(field string) {
	if r.original == nil {
		r.original = make(map[string]any)
	}
	r.original[field] = r.attrs[field]
}

// Trashed reports whether the record is soft deleted.
func (r *Record) Trashed() bool {
	s := r.model.schema
	return s.SoftDelete && r.attrs[s.DeletedAt] != nil
}

// Load lazily loads one relation onto this record.
func (r *Record) Load(ctx context.Context, name string) error {
	return r.model.loadRelation(ctx, []*Record{r}, name)
}

// Validate runs the schema rules against the record and reports whether
// it is valid. Messages are available from Errors afterwards.
func (r *Record) Validate(ctx context.Context) (bool, error) {
	r.errors = nil
	errs, err := validation.New(r.model.schema.Rules).Validate(ctx, r.attrs, recordEnv{r})
	if err != nil {
		return false, err
	}
	r.errors = errs
	return errs.Empty(), nil
}

// Errors returns the messages of the last Validate call.
func (r *Record) Errors() validation.Errors {
	if r.errors == nil {
		return validation.Errors{}
	}
	return r.errors
}

// recordEnv exposes the record's table and callbacks to validation rules.
type recordEnv struct {
	r *Record
}

func (e recordEnv) CountOthers(ctx context.Context, field string, value any) (int64, error) {
	q := e.r.model.Query().WithTrashed().Where(field, "=", value)
	if key := e.r.Key(); key != nil {
		q = q.Where(e.r.model.schema.PrimaryKey, "!=", key)
	}
	return q.Count(ctx)
}

func (e recordEnv) Callback(name string) (validation.Callback, bool) {
	cb, ok := e.r.model.callbacks[name]
	return cb, ok
}

// ToMap returns the attributes with loaded relations nested as maps.
func (r *Record) ToMap() map[string]any {
	out := maps.Clone(r.attrs)
	if out == nil {
		out = make(map[string]any)
	}
	for name, rel := range r.relations {
		switch v := rel.(type) {
		case []*Record:
			out[name] = CollectionToMaps(v)
		case *Record:
			if v == nil {
				out[name] = nil
			} else {
				out[name] = v.ToMap()
			}
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// ToJSON renders the record as a JSON string.
func (r *Record) ToJSON() (string, error) {
	b, err := r.MarshalJSON()
	return string(b), err
}

// CollectionToMaps converts records with ToMap.
func CollectionToMaps(records []*Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.ToMap()
	}
	return out
}

// CollectionToJSON renders records as a JSON array.
func CollectionToJSON(records []*Record) (string, error) {
	b, err := json.Marshal(CollectionToMaps(records))
	return string(b), err
}

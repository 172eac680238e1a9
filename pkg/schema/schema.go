// Package schema describes the tables models are bound to: their columns,
// primary key, relation descriptors and persistence conventions.
package schema

import (
	"fmt"
	"slices"

	"github.com/go-openapi/inflect"
)

// DefaultPrimaryKey is the primary key column used when a schema does not name one.
const DefaultPrimaryKey = "id"

// Default convention column names.
const (
	DefaultCreatedAt = "created_at"
	DefaultUpdatedAt = "updated_at"
	DefaultDeletedAt = "deleted_at"
)

// KeyStrategy controls how a primary key is assigned on insert.
type KeyStrategy string

const (
	// KeySerial lets the database assign the key (serial, identity or default).
	KeySerial KeyStrategy = "serial"
	// KeyUUID generates a random UUID before the INSERT.
	KeyUUID KeyStrategy = "uuid"
)

// Column is one declared column of a table.
type Column struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Nullable bool      `yaml:"nullable"`
}

// Schema is the typed field registry of one table.
type Schema struct {
	Table       string      `yaml:"table"`
	PrimaryKey  string      `yaml:"primaryKey"`
	KeyStrategy KeyStrategy `yaml:"keyStrategy"`

	// Columns lists the declared columns in order. A schema without declared
	// columns accepts any valid identifier as a column name.
	Columns   []Column   `yaml:"columns"`
	Relations []Relation `yaml:"relations"`

	Fillable []string `yaml:"fillable"`
	Guarded  []string `yaml:"guarded"`

	Timestamps bool   `yaml:"timestamps"`
	CreatedAt  string `yaml:"createdAt"`
	UpdatedAt  string `yaml:"updatedAt"`

	SoftDelete bool   `yaml:"softDelete"`
	DeletedAt  string `yaml:"deletedAt"`

	// Rules maps a field name to its validation rules, e.g. "min:3".
	Rules map[string][]string `yaml:"rules"`

	normalized bool
}

// Normalize fills in conventional defaults and validates every identifier
// the schema declares. It is idempotent.
func (s *Schema) Normalize() error {
	if s.normalized {
		return nil
	}
	if err := ValidateIdentifier(s.Table); err != nil {
		return fmt.Errorf("table name: %w", err)
	}

	if s.PrimaryKey == "" {
		s.PrimaryKey = DefaultPrimaryKey
	}
	if s.KeyStrategy == "" {
		s.KeyStrategy = KeySerial
	}
	if s.KeyStrategy != KeySerial && s.KeyStrategy != KeyUUID {
		return fmt.Errorf("table %s: unknown key strategy %q", s.Table, s.KeyStrategy)
	}
	if s.CreatedAt == "" {
		s.CreatedAt = DefaultCreatedAt
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = DefaultUpdatedAt
	}
	if s.DeletedAt == "" {
		s.DeletedAt = DefaultDeletedAt
	}
	if s.Fillable == nil && s.Guarded == nil {
		s.Guarded = []string{s.PrimaryKey}
	}

	names := []string{s.PrimaryKey, s.CreatedAt, s.UpdatedAt, s.DeletedAt}
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	names = append(names, s.Fillable...)
	names = append(names, s.Guarded...)
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return fmt.Errorf("table %s: %w", s.Table, err)
		}
	}

	seen := make(map[string]bool, len(s.Relations))
	for i := range s.Relations {
		rel := &s.Relations[i]
		if seen[rel.Name] {
			return fmt.Errorf("table %s: duplicate relation %q", s.Table, rel.Name)
		}
		seen[rel.Name] = true
		if err := rel.normalize(s); err != nil {
			return fmt.Errorf("table %s: %w", s.Table, err)
		}
	}

	s.normalized = true
	return nil
}

// HasDeclaredColumns reports whether the schema enumerates its columns.
func (s *Schema) HasDeclaredColumns() bool {
	return len(s.Columns) > 0
}

// Column returns the declared column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is a declared column.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// ColumnNames returns the declared column names in order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Relation returns the relation descriptor with the given name.
func (s *Schema) Relation(name string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// IsFillable reports whether bulk assignment may set field.
// The guarded list wins over the fillable list; when both are empty every
// field is fillable.
func (s *Schema) IsFillable(field string) bool {
	if len(s.Guarded) > 0 && slices.Contains(s.Guarded, field) {
		return false
	}
	if len(s.Fillable) > 0 {
		return slices.Contains(s.Fillable, field)
	}
	return true
}

// TracksUpdatedAt reports whether saves should refresh the updated-at column.
func (s *Schema) TracksUpdatedAt() bool {
	return s.Timestamps && (!s.HasDeclaredColumns() || s.HasColumn(s.UpdatedAt))
}

// TracksCreatedAt reports whether inserts should set the created-at column.
func (s *Schema) TracksCreatedAt() bool {
	return s.Timestamps && (!s.HasDeclaredColumns() || s.HasColumn(s.CreatedAt))
}

// RelationKind is the cardinality and key direction of a relation.
type RelationKind string

const (
	// HasMany: the related table holds a foreign key to this table; many rows per owner.
	HasMany RelationKind = "hasMany"
	// HasOne: the related table holds a foreign key to this table; at most one row per owner.
	HasOne RelationKind = "hasOne"
	// BelongsTo: this table holds a foreign key to the related table.
	BelongsTo RelationKind = "belongsTo"
)

// Relation is an explicit relation descriptor.
//
// LocalKey is the column on the owning table and ForeignKey the column on the
// related table; related rows are attached where related.ForeignKey equals
// owner.LocalKey.
type Relation struct {
	Name       string       `yaml:"name"`
	Kind       RelationKind `yaml:"kind"`
	Table      string       `yaml:"table"`
	LocalKey   string       `yaml:"localKey"`
	ForeignKey string       `yaml:"foreignKey"`
}

// Many reports whether the relation yields a list per owner.
func (r Relation) Many() bool {
	return r.Kind == HasMany
}

// normalize applies naming conventions:
//
//	users hasMany posts     -> posts.user_id = users.id
//	users hasOne profile    -> profiles.user_id = users.id
//	posts belongsTo author  -> authors.id = posts.author_id
func (r *Relation) normalize(owner *Schema) error {
	if err := ValidateIdentifier(r.Name); err != nil {
		return fmt.Errorf("relation name: %w", err)
	}

	ownerKey := inflect.ForeignKey(owner.Table)

	switch r.Kind {
	case HasMany:
		if r.Table == "" {
			r.Table = r.Name
		}
		if r.LocalKey == "" {
			r.LocalKey = owner.PrimaryKey
		}
		if r.ForeignKey == "" {
			r.ForeignKey = ownerKey
		}
	case HasOne:
		if r.Table == "" {
			r.Table = inflect.Pluralize(r.Name)
		}
		if r.LocalKey == "" {
			r.LocalKey = owner.PrimaryKey
		}
		if r.ForeignKey == "" {
			r.ForeignKey = ownerKey
		}
	case BelongsTo:
		if r.Table == "" {
			r.Table = inflect.Pluralize(r.Name)
		}
		if r.LocalKey == "" {
			r.LocalKey = inflect.ForeignKey(r.Name)
		}
		if r.ForeignKey == "" {
			r.ForeignKey = DefaultPrimaryKey
		}
	default:
		return fmt.Errorf("relation %s: unknown kind %q", r.Name, r.Kind)
	}

	for _, ident := range []string{r.Table, r.LocalKey, r.ForeignKey} {
		if err := ValidateIdentifier(ident); err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
	}
	return nil
}

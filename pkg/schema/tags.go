package schema

import (
	"fmt"
	"strings"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"

	// RulesTagKey holds pipe-separated validation rules (e.g., `rules:"required|min:3"`).
	RulesTagKey = "rules"
)

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element)
	Options map[string]string // Other options
}

// ParseTag parses a struct tag value into TagOptions.
// Format: "column_name,option1,option2(value),option3:value"
func ParseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for _, opt := range parts[1:] {
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			opts.Options[opt[:idx]] = opt[idx+1 : len(opt)-1]
		} else if idx := strings.Index(opt, ":"); idx != -1 {
			opts.Options[opt[:idx]] = opt[idx+1:]
		} else {
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

// SQLType returns the first option that names a PostgreSQL type, with its parameter.
func (t *TagOptions) SQLType() string {
	for key, value := range t.Options {
		if !IsSQLType(key) {
			continue
		}
		if value != "" {
			return fmt.Sprintf("%s(%s)", key, value)
		}
		return key
	}
	return ""
}

// RelationKind returns the relation kind named by the options, if any.
func (t *TagOptions) RelationKind() (RelationKind, bool) {
	for _, kind := range []RelationKind{HasMany, HasOne, BelongsTo} {
		if t.Has(string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// FieldSpec is one struct field as seen by the tag parser. It is filled
// either from reflection or from a parsed Go source file.
type FieldSpec struct {
	GoName   string
	Type     FieldType
	Nullable bool
	Tag      string // value of the po tag
	Rules    string // value of the rules tag
}

// Build assembles and normalizes a Schema from tagged fields.
//
// Column options: primaryKey, fillable, guarded, notNull, createdAt,
// updatedAt, softDelete and any PostgreSQL type name. Relation options:
// hasMany, hasOne, belongsTo with optional table(...), localKey(...) and
// foreignKey(...).
func Build(table string, fields []FieldSpec) (*Schema, error) {
	s := &Schema{Table: table}
	var fillable, guarded []string

	for _, f := range fields {
		if f.Tag == "" || f.Tag == "-" {
			continue
		}
		opts, err := ParseTag(f.Tag)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.GoName, err)
		}

		if kind, ok := opts.RelationKind(); ok {
			s.Relations = append(s.Relations, Relation{
				Name:       opts.Name,
				Kind:       kind,
				Table:      opts.Get("table"),
				LocalKey:   opts.Get("localKey"),
				ForeignKey: opts.Get("foreignKey"),
			})
			continue
		}

		col := Column{Name: opts.Name, Type: f.Type, Nullable: f.Nullable}
		if sqlType := opts.SQLType(); sqlType != "" {
			col.Type = TypeOfSQL(sqlType)
		}
		if opts.Has("notNull") || opts.Has("primaryKey") {
			col.Nullable = false
		}
		s.Columns = append(s.Columns, col)

		if opts.Has("primaryKey") {
			s.PrimaryKey = col.Name
			if col.Type == TypeUUID {
				s.KeyStrategy = KeyUUID
			}
		}
		if opts.Has("fillable") {
			fillable = append(fillable, col.Name)
		}
		if opts.Has("guarded") {
			guarded = append(guarded, col.Name)
		}
		if opts.Has("createdAt") {
			s.Timestamps = true
			s.CreatedAt = col.Name
		}
		if opts.Has("updatedAt") {
			s.Timestamps = true
			s.UpdatedAt = col.Name
		}
		if opts.Has("softDelete") {
			s.SoftDelete = true
			s.DeletedAt = col.Name
		}

		if f.Rules != "" {
			if s.Rules == nil {
				s.Rules = make(map[string][]string)
			}
			for _, rule := range strings.Split(f.Rules, "|") {
				if rule = strings.TrimSpace(rule); rule != "" {
					s.Rules[col.Name] = append(s.Rules[col.Name], rule)
				}
			}
		}
	}

	s.Fillable = fillable
	s.Guarded = guarded
	if err := s.Normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

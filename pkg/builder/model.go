package builder

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/schema"
	"github.com/marshallshelly/pebble-record/pkg/validation"
)

// Model is a table bound to a DB. It starts queries, builds records and
// offers stateless create/update shortcuts. A Model is safe for concurrent use.
type Model struct {
	db        *DB
	schema    *schema.Schema
	hooks     Hooks
	callbacks map[string]validation.Callback
}

func newModel(d *DB, s *schema.Schema) *Model {
	return &Model{db: d, schema: s, callbacks: make(map[string]validation.Callback)}
}

// Schema returns the table schema.
func (m *Model) Schema() *schema.Schema {
	return m.schema
}

// Table returns the table name.
func (m *Model) Table() string {
	return m.schema.Table
}

// Query starts an empty query on the model's table.
func (m *Model) Query() Query {
	return newQuery(m)
}

// Where starts a query with "col op value".
func (m *Model) Where(col, op string, value any) Query {
	return m.Query().Where(col, op, value)
}

// WhereIn starts a query with "col IN (...)".
func (m *Model) WhereIn(col string, values []any) Query {
	return m.Query().WhereIn(col, values)
}

// WhereNotIn starts a query with "col NOT IN (...)".
func (m *Model) WhereNotIn(col string, values []any) Query {
	return m.Query().WhereNotIn(col, values)
}

// LeftJoin starts a query with a LEFT JOIN.
func (m *Model) LeftJoin(table, left, op, right string) Query {
	return m.Query().LeftJoin(table, left, op, right)
}

// Select starts a query with the given projection.
func (m *Model) Select(projection string) Query {
	return m.Query().Select(projection)
}

// With starts a query that eager loads the named relations.
func (m *Model) With(relations ...string) Query {
	return m.Query().With(relations...)
}

// WithTrashed starts a query that includes soft-deleted rows.
func (m *Model) WithTrashed() Query {
	return m.Query().WithTrashed()
}

// OnlyTrashed starts a query restricted to soft-deleted rows.
func (m *Model) OnlyTrashed() Query {
	return m.Query().OnlyTrashed()
}

// New returns a transient record with the given attributes filled through
// the fillable rules.
func (m *Model) New(fields map[string]any) *Record {
	r := newRecord(m, nil, false)
	r.Fill(fields)
	return r
}

// Find returns the row with the given primary key, including soft-deleted
// rows, or nil when there is none.
func (m *Model) Find(ctx context.Context, id any) (*Record, error) {
	return m.Query().WithTrashed().Where(m.schema.PrimaryKey, "=", id).First(ctx)
}

// FindOrFail is like Find but returns runtime.ErrNotFound when there is no row.
func (m *Model) FindOrFail(ctx context.Context, id any) (*Record, error) {
	r, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s %s=%v", runtime.ErrNotFound, m.schema.Table, m.schema.PrimaryKey, id)
	}
	return r, nil
}

// All returns every row. Soft-deleted rows are excluded.
func (m *Model) All(ctx context.Context) ([]*Record, error) {
	return m.Query().Get(ctx)
}

// checkFields validates and sorts the column names of fields.
func (m *Model) checkFields(fields map[string]any) ([]string, error) {
	cols := slices.Sorted(maps.Keys(fields))
	for _, c := range cols {
		if err := m.schema.CheckColumn(c); err != nil {
			return nil, err
		}
		if table, _ := schema.SplitColumn(c); table != "" {
			return nil, &schema.IdentifierError{Identifier: c, Reason: "qualified names are not allowed here"}
		}
	}
	return cols, nil
}

// insertSQL renders an INSERT of cols returning the primary key.
func (m *Model) insertSQL(cols []string, fields map[string]any) (string, pgx.NamedArgs) {
	pk := m.schema.PrimaryKey
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", m.schema.Table, pk), nil
	}

	args := make(pgx.NamedArgs, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		name := fmt.Sprintf("p%d", i+1)
		args[name] = fields[c]
		placeholders[i] = "@" + name
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		m.schema.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), pk)
	return sql, args
}

// updateSQL renders an UPDATE of cols for the row whose primary key is id.
func (m *Model) updateSQL(cols []string, fields map[string]any, id any) (string, pgx.NamedArgs) {
	args := make(pgx.NamedArgs, len(cols)+1)
	sets := make([]string, len(cols))
	for i, c := range cols {
		name := fmt.Sprintf("p%d", i+1)
		args[name] = fields[c]
		sets[i] = fmt.Sprintf("%s = @%s", c, name)
	}
	args["pk"] = id
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = @pk", m.schema.Table, strings.Join(sets, ", "), m.schema.PrimaryKey)
	return sql, args
}

// Create inserts fields as a new row and returns its primary key. It does
// not run hooks, validation or timestamps.
func (m *Model) Create(ctx context.Context, fields map[string]any) (any, error) {
	cols, err := m.checkFields(fields)
	if err != nil {
		return nil, err
	}
	sql, args := m.insertSQL(cols, fields)
	id, err := m.db.db.QueryValue(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return fromDriver(id), nil
}

// Update sets fields on the row whose primary key is id and returns the
// number of rows affected. It does not run hooks, validation or timestamps.
func (m *Model) Update(ctx context.Context, id any, fields map[string]any) (int64, error) {
	cols, err := m.checkFields(fields)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}
	sql, args := m.updateSQL(cols, fields, id)
	return m.db.db.Exec(ctx, sql, args)
}

// Delete removes the row whose primary key is id, bypassing hooks and soft delete.
func (m *Model) Delete(ctx context.Context, id any) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = @pk", m.schema.Table, m.schema.PrimaryKey)
	return m.db.db.Exec(ctx, sql, pgx.NamedArgs{"pk": id})
}

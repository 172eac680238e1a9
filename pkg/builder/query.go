package builder

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-record/pkg/runtime"
	"github.com/marshallshelly/pebble-record/pkg/schema"
)

// trashScope selects how soft-deleted rows are filtered.
type trashScope int

const (
	withoutTrashed trashScope = iota
	withTrashed
	onlyTrashed
)

type predicate struct {
	sql string
	or  bool
}

// Query is an immutable SELECT under construction. Every method returns a
// new Query and leaves the receiver untouched, so a Query can be shared,
// branched and reused freely. The first invalid argument is kept and
// returned by ToSQL and every terminal operation.
type Query struct {
	model *Model

	projection string
	distinct   bool
	joins      []string
	where      []predicate
	args       pgx.NamedArgs
	counter    int
	groupBy    string
	having     string
	orderBy    string
	limit      int
	offset     int
	with       []string
	scope      trashScope

	err error
}

func newQuery(m *Model) Query {
	return Query{model: m, limit: -1, offset: -1}
}

// Model returns the model the query reads from.
func (q Query) Model() *Model {
	return q.model
}

// Err returns the first error recorded while building the query.
func (q Query) Err() error {
	return q.err
}

func (q Query) fail(err error) Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// bind stores value under the next placeholder name and returns its reference.
func (q Query) bind(value any) (Query, string) {
	q.counter++
	name := "p" + strconv.Itoa(q.counter)
	args := maps.Clone(q.args)
	if args == nil {
		args = make(pgx.NamedArgs)
	}
	args[name] = value
	q.args = args
	return q, "@" + name
}

func (q Query) addWhere(sql string, or bool) Query {
	q.where = append(slices.Clip(q.where), predicate{sql: sql, or: or})
	return q
}

var errUnbound = fmt.Errorf("query is not bound to a model")

func (q Query) column(col string) (string, error) {
	if q.model == nil {
		return "", errUnbound
	}
	col = strings.TrimSpace(col)
	if err := q.model.schema.CheckColumn(col); err != nil {
		return "", err
	}
	return col, nil
}

// Select sets the projection, e.g. "id, name" or "user_id, COUNT(*) AS total".
func (q Query) Select(projection string) Query {
	if err := schema.ValidateProjection(projection); err != nil {
		return q.fail(err)
	}
	q.projection = strings.TrimSpace(projection)
	return q
}

// Distinct adds DISTINCT to the projection.
func (q Query) Distinct() Query {
	q.distinct = true
	return q
}

// Join adds "<kind> JOIN table ON left op right". The kind is one of INNER,
// LEFT, RIGHT, FULL or CROSS; CROSS joins ignore the ON arguments.
func (q Query) Join(kind, table, left, op, right string) Query {
	joinSQL, err := schema.NormalizeJoinKind(kind)
	if err != nil {
		return q.fail(err)
	}
	if err := schema.ValidateIdentifier(table); err != nil {
		return q.fail(err)
	}

	clause := joinSQL + " " + table
	if joinSQL != "CROSS JOIN" {
		operator, err := schema.NormalizeOperator(op)
		if err != nil {
			return q.fail(err)
		}
		for _, ref := range []string{left, right} {
			if err := schema.ValidateIdentifier(ref); err != nil {
				return q.fail(err)
			}
		}
		clause += fmt.Sprintf(" ON %s %s %s", left, operator, right)
	}

	q.joins = append(slices.Clip(q.joins), clause)
	return q
}

// InnerJoin adds an INNER JOIN.
func (q Query) InnerJoin(table, left, op, right string) Query {
	return q.Join("INNER", table, left, op, right)
}

// LeftJoin adds a LEFT JOIN.
func (q Query) LeftJoin(table, left, op, right string) Query {
	return q.Join("LEFT", table, left, op, right)
}

// RightJoin adds a RIGHT JOIN.
func (q Query) RightJoin(table, left, op, right string) Query {
	return q.Join("RIGHT", table, left, op, right)
}

// Where adds "col op value" joined with AND.
func (q Query) Where(col, op string, value any) Query {
	return q.comparison(col, op, value, false)
}

// OrWhere adds "col op value" joined with OR. As the first predicate it behaves like Where.
func (q Query) OrWhere(col, op string, value any) Query {
	return q.comparison(col, op, value, true)
}

func (q Query) comparison(col, op string, value any, or bool) Query {
	column, err := q.column(col)
	if err != nil {
		return q.fail(err)
	}
	operator, err := schema.NormalizeOperator(op)
	if err != nil {
		return q.fail(err)
	}

	if operator == "IS" || operator == "IS NOT" {
		switch v := value.(type) {
		case nil:
			return q.addWhere(column+" "+operator+" NULL", or)
		case bool:
			return q.addWhere(column+" "+operator+" "+strings.ToUpper(strconv.FormatBool(v)), or)
		default:
			return q.fail(fmt.Errorf("%w: %s accepts only nil or a boolean", schema.ErrInvalidOperator, operator))
		}
	}

	q, ph := q.bind(value)
	return q.addWhere(column+" "+operator+" "+ph, or)
}

// WhereIn adds "col IN (...)". An empty list matches nothing.
func (q Query) WhereIn(col string, values []any) Query {
	return q.membership(col, values, "IN", "1 = 0")
}

// WhereNotIn adds "col NOT IN (...)". An empty list matches everything.
func (q Query) WhereNotIn(col string, values []any) Query {
	return q.membership(col, values, "NOT IN", "1 = 1")
}

func (q Query) membership(col string, values []any, operator, whenEmpty string) Query {
	column, err := q.column(col)
	if err != nil {
		return q.fail(err)
	}
	if len(values) == 0 {
		return q.addWhere(whenEmpty, false)
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		q, placeholders[i] = q.bind(v)
	}
	return q.addWhere(fmt.Sprintf("%s %s (%s)", column, operator, strings.Join(placeholders, ", ")), false)
}

// WhereNull adds "col IS NULL".
func (q Query) WhereNull(col string) Query {
	return q.Where(col, "IS", nil)
}

// WhereNotNull adds "col IS NOT NULL".
func (q Query) WhereNotNull(col string) Query {
	return q.Where(col, "IS NOT", nil)
}

// GroupBy sets the GROUP BY columns, replacing any previous ones.
func (q Query) GroupBy(cols ...string) Query {
	checked := make([]string, 0, len(cols))
	for _, c := range cols {
		column, err := q.column(c)
		if err != nil {
			return q.fail(err)
		}
		checked = append(checked, column)
	}
	q.groupBy = strings.Join(checked, ", ")
	return q
}

// Having sets "expr op value", where expr is a column or an aggregate such as COUNT(*).
func (q Query) Having(expr, op string, value any) Query {
	if err := schema.ValidateExpression(expr); err != nil {
		return q.fail(err)
	}
	operator, err := schema.NormalizeOperator(op)
	if err != nil {
		return q.fail(err)
	}
	q, ph := q.bind(value)
	q.having = strings.TrimSpace(expr) + " " + operator + " " + ph
	return q
}

// OrderBy sets the ordering, replacing any previous one. col may also name
// an alias from the projection. An empty direction means ASC.
func (q Query) OrderBy(col, dir string) Query {
	col = strings.TrimSpace(col)
	if !slices.Contains(schema.ProjectionAliases(q.projection), col) {
		if _, err := q.column(col); err != nil {
			return q.fail(err)
		}
	}
	direction, err := schema.NormalizeDirection(dir)
	if err != nil {
		return q.fail(err)
	}
	q.orderBy = col + " " + direction
	return q
}

// Limit sets the maximum number of rows.
func (q Query) Limit(n int) Query {
	if n < 0 {
		return q.fail(fmt.Errorf("limit must be non-negative, got %d", n))
	}
	q.limit = n
	return q
}

// Offset sets the number of rows to skip.
func (q Query) Offset(n int) Query {
	if n < 0 {
		return q.fail(fmt.Errorf("offset must be non-negative, got %d", n))
	}
	q.offset = n
	return q
}

// With requests eager loading of the named relations in Get.
func (q Query) With(relations ...string) Query {
	q.with = append(slices.Clip(q.with), relations...)
	return q
}

// WithTrashed includes soft-deleted rows.
func (q Query) WithTrashed() Query {
	q.scope = withTrashed
	return q
}

// OnlyTrashed restricts the query to soft-deleted rows.
func (q Query) OnlyTrashed() Query {
	if q.model == nil {
		return q.fail(errUnbound)
	}
	s := q.model.schema
	if !s.SoftDelete {
		return q.fail(&runtime.FeatureDisabledError{Table: s.Table, Feature: "soft delete"})
	}
	q.scope = onlyTrashed
	return q
}

func (q Query) scopeSQL() string {
	s := q.model.schema
	if !s.SoftDelete {
		return ""
	}
	switch q.scope {
	case withoutTrashed:
		return s.Table + "." + s.DeletedAt + " IS NULL"
	case onlyTrashed:
		return s.Table + "." + s.DeletedAt + " IS NOT NULL"
	}
	return ""
}

func (q Query) whereSQL() string {
	var b strings.Builder
	for i, p := range q.where {
		if i > 0 {
			if p.or {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString(p.sql)
	}
	user := b.String()

	scope := q.scopeSQL()
	switch {
	case scope == "":
		return user
	case user == "":
		return scope
	case len(q.where) == 1:
		return user + " AND " + scope
	default:
		return "(" + user + ") AND " + scope
	}
}

type clauses struct {
	joins    bool
	grouping bool
	ordering bool
}

// compile assembles the statement clauses in their fixed order.
func (q Query) compile(projection string, c clauses) (string, pgx.NamedArgs, error) {
	if q.model == nil {
		return "", nil, errUnbound
	}
	if q.err != nil {
		return "", nil, q.err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(projection)
	b.WriteString(" FROM ")
	b.WriteString(q.model.schema.Table)
	if c.joins {
		for _, j := range q.joins {
			b.WriteString(" ")
			b.WriteString(j)
		}
	}
	if where := q.whereSQL(); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if c.grouping {
		if q.groupBy != "" {
			b.WriteString(" GROUP BY ")
			b.WriteString(q.groupBy)
		}
		if q.having != "" {
			b.WriteString(" HAVING ")
			b.WriteString(q.having)
		}
	}
	if c.ordering {
		if q.orderBy != "" {
			b.WriteString(" ORDER BY ")
			b.WriteString(q.orderBy)
		}
		if q.limit >= 0 {
			b.WriteString(" LIMIT ")
			b.WriteString(strconv.Itoa(q.limit))
		}
		if q.offset >= 0 {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.Itoa(q.offset))
		}
	}

	return b.String(), maps.Clone(q.args), nil
}

// ToSQL compiles the query into SQL with pgx named arguments.
func (q Query) ToSQL() (string, pgx.NamedArgs, error) {
	projection := q.projection
	if projection == "" {
		projection = "*"
	}
	if q.distinct {
		projection = "DISTINCT " + projection
	}
	return q.compile(projection, clauses{joins: true, grouping: true, ordering: true})
}

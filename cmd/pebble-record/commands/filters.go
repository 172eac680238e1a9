package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-record/pkg/builder"
)

// filters are the query flags shared by query, count, paginate and browse.
type filters struct {
	where       []string
	orWhere     []string
	order       string
	selection   string
	with        []string
	withTrashed bool
	onlyTrashed bool
}

func (f *filters) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "Filter as col:op:value (repeatable, joined with AND); ops: = != <> < <= > >= like ilike in notin null notnull")
	cmd.Flags().StringArrayVar(&f.orWhere, "or-where", nil, "Filter as col:op:value joined with OR")
	cmd.Flags().StringVar(&f.order, "order", "", "Order as col[:asc|desc]")
	cmd.Flags().StringVar(&f.selection, "select", "", "Projection, e.g. \"id, name\"")
	cmd.Flags().StringSliceVar(&f.with, "with", nil, "Relations to eager load (comma separated)")
	cmd.Flags().BoolVar(&f.withTrashed, "with-trashed", false, "Include soft-deleted rows")
	cmd.Flags().BoolVar(&f.onlyTrashed, "only-trashed", false, "Only soft-deleted rows")
	cmd.MarkFlagsMutuallyExclusive("with-trashed", "only-trashed")
}

// condition is one parsed --where or --or-where flag.
type condition struct {
	col    string
	op     string
	value  any
	values []any
}

// parseCondition parses col:op:value. The value keeps any further colons,
// so timestamps need no quoting. in and notin take a comma separated list;
// null and notnull take no value.
func parseCondition(s string) (condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return condition{}, fmt.Errorf("invalid filter %q: want col:op:value", s)
	}
	c := condition{col: strings.TrimSpace(parts[0]), op: strings.ToLower(strings.TrimSpace(parts[1]))}

	switch c.op {
	case "null", "notnull":
		if len(parts) == 3 {
			return condition{}, fmt.Errorf("invalid filter %q: %s takes no value", s, c.op)
		}
		return c, nil
	case "in", "notin":
		if len(parts) < 3 {
			return condition{}, fmt.Errorf("invalid filter %q: %s needs a value list", s, c.op)
		}
		if parts[2] != "" {
			for _, v := range strings.Split(parts[2], ",") {
				c.values = append(c.values, parseValue(v))
			}
		}
		return c, nil
	}

	if len(parts) < 3 {
		return condition{}, fmt.Errorf("invalid filter %q: want col:op:value", s)
	}
	c.value = parseValue(parts[2])
	return c, nil
}

// parseValue turns a flag value into an integer, float, bool or nil when it
// reads as one, and leaves it a string otherwise. Quote a value to keep it
// a string: 'true' or "42".
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if strings.EqualFold(s, "null") {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return strings.EqualFold(s, "true")
	}
	return s
}

func (c condition) apply(q builder.Query, or bool) (builder.Query, error) {
	switch c.op {
	case "null":
		if or {
			return q.OrWhere(c.col, "IS", nil), nil
		}
		return q.WhereNull(c.col), nil
	case "notnull":
		if or {
			return q.OrWhere(c.col, "IS NOT", nil), nil
		}
		return q.WhereNotNull(c.col), nil
	case "in", "notin":
		if or {
			return q, fmt.Errorf("--or-where does not support %s", c.op)
		}
		if c.op == "in" {
			return q.WhereIn(c.col, c.values), nil
		}
		return q.WhereNotIn(c.col, c.values), nil
	}
	if or {
		return q.OrWhere(c.col, c.op, c.value), nil
	}
	return q.Where(c.col, c.op, c.value), nil
}

// parseOrder splits col[:dir].
func parseOrder(s string) (col, dir string) {
	col, dir, _ = strings.Cut(s, ":")
	return strings.TrimSpace(col), strings.TrimSpace(dir)
}

// build applies the filters to q. Builder errors surface from q.Err.
func (f *filters) build(q builder.Query) (builder.Query, error) {
	if f.selection != "" {
		q = q.Select(f.selection)
	}
	for _, groups := range []struct {
		flags []string
		or    bool
	}{{f.where, false}, {f.orWhere, true}} {
		for _, raw := range groups.flags {
			c, err := parseCondition(raw)
			if err != nil {
				return q, err
			}
			if q, err = c.apply(q, groups.or); err != nil {
				return q, err
			}
		}
	}
	if f.order != "" {
		q = q.OrderBy(parseOrder(f.order))
	}
	if len(f.with) > 0 {
		q = q.With(f.with...)
	}
	switch {
	case f.withTrashed:
		q = q.WithTrashed()
	case f.onlyTrashed:
		q = q.OnlyTrashed()
	}
	return q, q.Err()
}

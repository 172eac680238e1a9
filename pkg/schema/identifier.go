package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidIdentifier is returned when a table, column or alias name is not allowed.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidOperator is returned when a comparison operator is not in the allow-list.
	ErrInvalidOperator = errors.New("invalid operator")
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLength = 63

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
	aggregateRegex  = regexp.MustCompile(`(?i)^(COUNT|SUM|AVG|MIN|MAX)\(\s*(\*|(DISTINCT\s+)?[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?)\s*\)$`)
	aliasRegex      = regexp.MustCompile(`(?i)^(.+?)\s+AS\s+([a-zA-Z_][a-zA-Z0-9_]*)$`)
	spaceRegex      = regexp.MustCompile(`\s+`)
)

var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"LIKE": true, "NOT LIKE": true,
	"ILIKE": true, "NOT ILIKE": true,
	"IS": true, "IS NOT": true,
}

var allowedJoins = map[string]string{
	"INNER": "INNER JOIN",
	"LEFT":  "LEFT JOIN",
	"RIGHT": "RIGHT JOIN",
	"FULL":  "FULL OUTER JOIN",
	"CROSS": "CROSS JOIN",
}

// IdentifierError describes a rejected identifier or expression.
type IdentifierError struct {
	Identifier string
	Reason     string
}

// Error implements the error interface.
func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Identifier, e.Reason)
}

// Unwrap returns ErrInvalidIdentifier.
func (e *IdentifierError) Unwrap() error {
	return ErrInvalidIdentifier
}

// ValidIdentifier reports whether id is a plain or table-qualified identifier.
func ValidIdentifier(id string) bool {
	return ValidateIdentifier(id) == nil
}

// ValidateIdentifier checks that id is a plain or table-qualified identifier.
func ValidateIdentifier(id string) error {
	if id == "" {
		return &IdentifierError{Identifier: id, Reason: "identifier cannot be empty"}
	}
	for _, part := range strings.Split(id, ".") {
		if len(part) > maxIdentifierLength {
			return &IdentifierError{Identifier: id, Reason: "identifier exceeds 63 characters"}
		}
	}
	if !identifierRegex.MatchString(id) {
		return &IdentifierError{Identifier: id, Reason: "only letters, digits, underscores and one dot are allowed"}
	}
	return nil
}

// SplitColumn splits "table.column" into its parts. Unqualified names return an empty table.
func SplitColumn(ref string) (table, column string) {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// CheckColumn validates a column reference against this schema. Columns
// qualified with another table are only checked syntactically, since they
// belong to a joined table.
func (s *Schema) CheckColumn(ref string) error {
	if err := ValidateIdentifier(ref); err != nil {
		return err
	}
	if !s.HasDeclaredColumns() {
		return nil
	}
	table, column := SplitColumn(ref)
	if table != "" && table != s.Table {
		return nil
	}
	if !s.HasColumn(column) {
		return &IdentifierError{Identifier: ref, Reason: fmt.Sprintf("unknown column on table %s", s.Table)}
	}
	return nil
}

// NormalizeOperator upper-cases op, collapses whitespace and checks it against the allow-list.
func NormalizeOperator(op string) (string, error) {
	normalized := strings.ToUpper(spaceRegex.ReplaceAllString(strings.TrimSpace(op), " "))
	if !allowedOperators[normalized] {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	return normalized, nil
}

// NormalizeDirection returns ASC or DESC. An empty direction means ASC.
func NormalizeDirection(dir string) (string, error) {
	switch d := strings.ToUpper(strings.TrimSpace(dir)); d {
	case "":
		return "ASC", nil
	case "ASC", "DESC":
		return d, nil
	default:
		return "", &IdentifierError{Identifier: dir, Reason: "order direction must be ASC or DESC"}
	}
}

// NormalizeJoinKind maps a join kind such as "left" or "LEFT JOIN" to its SQL keyword.
func NormalizeJoinKind(kind string) (string, error) {
	k := strings.ToUpper(strings.TrimSpace(kind))
	k = strings.TrimSuffix(k, " JOIN")
	k = strings.TrimSuffix(k, " OUTER")
	if sql, ok := allowedJoins[k]; ok {
		return sql, nil
	}
	return "", &IdentifierError{Identifier: kind, Reason: "unsupported join kind"}
}

// ValidateExpression accepts a column reference or an aggregate call such as
// COUNT(*) or SUM(amount), as used in HAVING and projections.
func ValidateExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if aggregateRegex.MatchString(expr) {
		return nil
	}
	if ValidIdentifier(expr) {
		return nil
	}
	return &IdentifierError{Identifier: expr, Reason: "expected a column or an aggregate"}
}

// ProjectionAliases returns the aliases introduced by AS in a SELECT list.
func ProjectionAliases(projection string) []string {
	var aliases []string
	for _, item := range strings.Split(projection, ",") {
		if m := aliasRegex.FindStringSubmatch(strings.TrimSpace(item)); m != nil {
			aliases = append(aliases, m[2])
		}
	}
	return aliases
}

// ValidateProjection checks a comma-separated SELECT list. Each item is *,
// table.*, a column, or an aggregate, each optionally followed by AS alias.
func ValidateProjection(projection string) error {
	if strings.TrimSpace(projection) == "" {
		return &IdentifierError{Identifier: projection, Reason: "projection cannot be empty"}
	}
	for _, item := range strings.Split(projection, ",") {
		item = strings.TrimSpace(item)
		if m := aliasRegex.FindStringSubmatch(item); m != nil {
			item = strings.TrimSpace(m[1])
		}
		if item == "*" {
			continue
		}
		if t, ok := strings.CutSuffix(item, ".*"); ok && ValidIdentifier(t) && !strings.Contains(t, ".") {
			continue
		}
		if err := ValidateExpression(item); err != nil {
			return err
		}
	}
	return nil
}

// Package validation runs declarative field rules against record values and
// collects field-scoped error messages.
package validation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Errors maps a field name to its ordered error messages. An empty Errors means valid.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Has reports whether field has any errors.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// First returns the first message for field, or "".
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Empty reports whether there are no errors.
func (e Errors) Empty() bool {
	return len(e) == 0
}

// Fields returns the fields with errors in sorted order.
func (e Errors) Fields() []string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// String renders one "field: message" line per error.
func (e Errors) String() string {
	var b strings.Builder
	for _, f := range e.Fields() {
		for _, msg := range e[f] {
			fmt.Fprintf(&b, "%s: %s\n", f, msg)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Callback is a named, model-defined check. It returns a non-empty message
// when value is rejected.
type Callback func(ctx context.Context, field string, value any) (string, error)

// Env gives rules access to the record being validated.
type Env interface {
	// CountOthers counts rows other than the record itself whose field equals value.
	CountOthers(ctx context.Context, field string, value any) (int64, error)
	// Callback returns the named callback registered on the model.
	Callback(name string) (Callback, bool)
}

// Input is one field/rule pair handed to a Rule.
type Input struct {
	Field  string
	Value  any
	Params string
}

// Rule checks one field. It returns a non-empty message on failure; a
// non-nil error aborts validation.
type Rule func(ctx context.Context, env Env, in Input) (string, error)

var (
	rulesMu sync.RWMutex
	rules   = map[string]Rule{
		"required": required,
		"email":    email,
		"min":      minimum,
		"integer":  integer,
		"regex":    matches,
		"unique":   unique,
		"callback": callback,
	}
)

// Register adds or replaces a named rule.
func Register(name string, rule Rule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules[name] = rule
}

func lookup(name string) (Rule, bool) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	r, ok := rules[name]
	return r, ok
}

// ParseRule splits "name:params" into its parts.
func ParseRule(rule string) (name, params string) {
	name, params, _ = strings.Cut(strings.TrimSpace(rule), ":")
	return name, params
}

// Validator holds a rule set keyed by field name.
type Validator struct {
	rules map[string][]string
}

// New creates a Validator for the given rule set.
func New(rules map[string][]string) *Validator {
	return &Validator{rules: rules}
}

// Validate runs every rule against values and returns a fresh Errors.
// Fields are visited in sorted order, rules in declaration order. Missing
// fields are validated as nil.
func (v *Validator) Validate(ctx context.Context, values map[string]any, env Env) (Errors, error) {
	errs := make(Errors)

	fields := make([]string, 0, len(v.rules))
	for f := range v.rules {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	for _, field := range fields {
		value := values[field]
		for _, entry := range v.rules[field] {
			name, params := ParseRule(entry)
			rule, ok := lookup(name)
			if !ok {
				return nil, &InvalidRuleError{Field: field, Rule: name, Reason: "unknown rule"}
			}
			msg, err := rule(ctx, env, Input{Field: field, Value: value, Params: params})
			if err != nil {
				return nil, err
			}
			if msg != "" {
				errs.Add(field, msg)
			}
		}
	}
	return errs, nil
}

// InvalidRuleError is returned when a rule cannot be run: an unknown rule
// name, bad parameters, or a callback the model does not define.
type InvalidRuleError struct {
	Field  string
	Rule   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %q on field %s: %s", e.Rule, e.Field, e.Reason)
}

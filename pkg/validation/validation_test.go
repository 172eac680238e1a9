package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct {
	counts    map[string]int64
	countErr  error
	callbacks map[string]Callback
	asked     []string
}

func (f *fakeEnv) CountOthers(_ context.Context, field string, value any) (int64, error) {
	f.asked = append(f.asked, field)
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[field], nil
}

func (f *fakeEnv) Callback(name string) (Callback, bool) {
	cb, ok := f.callbacks[name]
	return cb, ok
}

func validate(t *testing.T, rules map[string][]string, values map[string]any, env Env) Errors {
	t.Helper()
	errs, err := New(rules).Validate(context.Background(), values, env)
	require.NoError(t, err)
	return errs
}

func TestValidate_Min(t *testing.T) {
	rules := map[string][]string{"name": {"min:3"}}

	tests := []struct {
		name  string
		value any
		fails bool
	}{
		{"short string", "ab", true},
		{"long enough string", "abc", false},
		{"multibyte string counts characters", "çöğ", false},
		{"small number", 2, true},
		{"large number", 5, false},
		{"float below", 2.5, true},
		{"int64 equal", int64(3), false},
		{"nil skipped", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validate(t, rules, map[string]any{"name": tt.value}, nil)
			if tt.fails {
				assert.Len(t, errs["name"], 1)
			} else {
				assert.True(t, errs.Empty(), "unexpected errors: %v", errs)
			}
		})
	}
}

func TestValidate_Required(t *testing.T) {
	rules := map[string][]string{"title": {"required"}}

	for _, v := range []any{nil, "", (*string)(nil)} {
		errs := validate(t, rules, map[string]any{"title": v}, nil)
		assert.Equal(t, "title is required.", errs.First("title"))
	}
	assert.True(t, validate(t, rules, map[string]any{"title": "x"}, nil).Empty())
	assert.True(t, validate(t, rules, map[string]any{"title": 0}, nil).Empty(), "zero is present")

	errs := validate(t, rules, map[string]any{}, nil)
	assert.True(t, errs.Has("title"), "missing fields validate as nil")
}

func TestValidate_Email(t *testing.T) {
	rules := map[string][]string{"email": {"email"}}

	for _, ok := range []string{"", "jane@example.com", "a.b+c@mail.co.uk"} {
		assert.True(t, validate(t, rules, map[string]any{"email": ok}, nil).Empty(), ok)
	}
	for _, bad := range []string{"jane", "jane@", "Jane <jane@example.com>", "jane@localhost"} {
		assert.True(t, validate(t, rules, map[string]any{"email": bad}, nil).Has("email"), bad)
	}
	assert.True(t, validate(t, rules, map[string]any{"email": 42}, nil).Has("email"))
}

func TestValidate_Integer(t *testing.T) {
	rules := map[string][]string{"age": {"integer"}}

	for _, ok := range []any{nil, 0, int32(7), "42", " -3 ", 4.0} {
		assert.True(t, validate(t, rules, map[string]any{"age": ok}, nil).Empty(), "%v", ok)
	}
	for _, bad := range []any{"4.5", "abc", 4.5, true} {
		assert.True(t, validate(t, rules, map[string]any{"age": bad}, nil).Has("age"), "%v", bad)
	}
}

func TestValidate_Regex(t *testing.T) {
	errs := validate(t, map[string][]string{"code": {"regex:/^[a-z]{3}$/i"}}, map[string]any{"code": "ABC"}, nil)
	assert.True(t, errs.Empty())

	errs = validate(t, map[string][]string{"code": {`regex:^\d+$`}}, map[string]any{"code": "12a"}, nil)
	assert.Equal(t, []string{"code format is invalid."}, errs["code"])

	errs = validate(t, map[string][]string{"code": {`regex:^\d+$`}}, map[string]any{"code": ""}, nil)
	assert.True(t, errs.Empty(), "empty values are skipped")

	_, err := New(map[string][]string{"code": {"regex:/[/x"}}).Validate(context.Background(), map[string]any{"code": "a"}, nil)
	var ruleErr *InvalidRuleError
	assert.ErrorAs(t, err, &ruleErr)
}

func TestValidate_Unique(t *testing.T) {
	env := &fakeEnv{counts: map[string]int64{"email": 1}}
	rules := map[string][]string{"email": {"unique"}, "slug": {"unique"}}

	errs := validate(t, rules, map[string]any{"email": "a@b.co", "slug": "hello"}, env)
	assert.Equal(t, []string{"email is already taken."}, errs["email"])
	assert.False(t, errs.Has("slug"))
	assert.Equal(t, []string{"email", "slug"}, env.asked)

	env.countErr = errors.New("connection reset")
	_, err := New(rules).Validate(context.Background(), map[string]any{"email": "a@b.co"}, env)
	assert.EqualError(t, err, "connection reset")
}

func TestValidate_Callback(t *testing.T) {
	env := &fakeEnv{callbacks: map[string]Callback{
		"noAdmin": func(_ context.Context, field string, value any) (string, error) {
			if value == "admin" {
				return field + " cannot be admin.", nil
			}
			return "", nil
		},
	}}
	rules := map[string][]string{"username": {"callback:noAdmin"}}

	errs := validate(t, rules, map[string]any{"username": "admin"}, env)
	assert.Equal(t, "username cannot be admin.", errs.First("username"))
	assert.True(t, validate(t, rules, map[string]any{"username": "jane"}, env).Empty())

	_, err := New(map[string][]string{"username": {"callback:missing"}}).Validate(context.Background(), nil, env)
	var ruleErr *InvalidRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "callback", ruleErr.Rule)
	assert.Contains(t, ruleErr.Error(), "missing")
}

func TestValidate_UnknownRule(t *testing.T) {
	_, err := New(map[string][]string{"x": {"frobnicate"}}).Validate(context.Background(), nil, nil)
	var ruleErr *InvalidRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "frobnicate", ruleErr.Rule)
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	rules := map[string][]string{
		"name":  {"required", "min:3"},
		"email": {"required", "email"},
	}
	errs := validate(t, rules, map[string]any{"name": "", "email": "nope"}, nil)

	assert.Equal(t, []string{"name is required.", "name must be at least 3 characters."}, errs["name"])
	assert.Equal(t, []string{"email must be a valid email address."}, errs["email"])
	assert.Equal(t, []string{"email", "name"}, errs.Fields())
	assert.Equal(t, 3, strings.Count(errs.String(), "\n")+1)
}

func TestRegister(t *testing.T) {
	Register("uppercase", func(_ context.Context, _ Env, in Input) (string, error) {
		if s, ok := in.Value.(string); ok && s != strings.ToUpper(s) {
			return in.Field + " must be uppercase.", nil
		}
		return "", nil
	})

	errs := validate(t, map[string][]string{"code": {"uppercase"}}, map[string]any{"code": "abc"}, nil)
	assert.Equal(t, "code must be uppercase.", errs.First("code"))
}

func TestParseRule(t *testing.T) {
	name, params := ParseRule("regex:^a:b$")
	assert.Equal(t, "regex", name)
	assert.Equal(t, "^a:b$", params)

	name, params = ParseRule(" required ")
	assert.Equal(t, "required", name)
	assert.Empty(t, params)
}

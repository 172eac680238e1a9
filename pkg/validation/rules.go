package validation

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func required(_ context.Context, _ Env, in Input) (string, error) {
	if isEmpty(in.Value) {
		return fmt.Sprintf("%s is required.", in.Field), nil
	}
	return "", nil
}

func email(_ context.Context, _ Env, in Input) (string, error) {
	if isEmpty(in.Value) {
		return "", nil
	}
	s, ok := deref(in.Value).(string)
	if ok {
		addr, err := mail.ParseAddress(s)
		if err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".") {
			return "", nil
		}
	}
	return fmt.Sprintf("%s must be a valid email address.", in.Field), nil
}

// minimum compares numbers by value and strings by character count.
func minimum(_ context.Context, _ Env, in Input) (string, error) {
	limit, err := strconv.ParseFloat(strings.TrimSpace(in.Params), 64)
	if err != nil {
		return "", &InvalidRuleError{Field: in.Field, Rule: "min", Reason: fmt.Sprintf("parameter %q is not a number", in.Params)}
	}

	switch v := deref(in.Value).(type) {
	case nil:
		return "", nil
	case string:
		if float64(utf8.RuneCountInString(v)) < limit {
			return fmt.Sprintf("%s must be at least %s characters.", in.Field, in.Params), nil
		}
	default:
		n, ok := toFloat(v)
		if ok && n < limit {
			return fmt.Sprintf("%s must be at least %s.", in.Field, in.Params), nil
		}
	}
	return "", nil
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func integer(_ context.Context, _ Env, in Input) (string, error) {
	v := deref(in.Value)
	if v == nil {
		return "", nil
	}
	ok := false
	switch x := v.(type) {
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		ok = err == nil
	case bool:
	default:
		rv := reflect.ValueOf(x)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			ok = true
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			ok = f == math.Trunc(f) && !math.IsInf(f, 0)
		}
	}
	if !ok {
		return fmt.Sprintf("%s must be an integer.", in.Field), nil
	}
	return "", nil
}

// compilePattern accepts a bare pattern or a delimited one such as /^a+$/i.
func compilePattern(expr string) (*regexp.Regexp, error) {
	pattern := expr
	if len(expr) >= 2 && expr[0] == '/' {
		if end := strings.LastIndexByte(expr, '/'); end > 0 {
			pattern = expr[1:end]
			for _, flag := range expr[end+1:] {
				switch flag {
				case 'i', 'm', 's':
					pattern = "(?" + string(flag) + ")" + pattern
				case 'u':
				default:
					return nil, fmt.Errorf("unsupported regex flag %q", flag)
				}
			}
		}
	}
	return regexp.Compile(pattern)
}

func matches(_ context.Context, _ Env, in Input) (string, error) {
	if isEmpty(in.Value) {
		return "", nil
	}
	re, err := compilePattern(in.Params)
	if err != nil {
		return "", &InvalidRuleError{Field: in.Field, Rule: "regex", Reason: err.Error()}
	}
	if !re.MatchString(fmt.Sprint(deref(in.Value))) {
		return fmt.Sprintf("%s format is invalid.", in.Field), nil
	}
	return "", nil
}

func unique(ctx context.Context, env Env, in Input) (string, error) {
	if env == nil {
		return "", &InvalidRuleError{Field: in.Field, Rule: "unique", Reason: "no table to check against"}
	}
	n, err := env.CountOthers(ctx, in.Field, deref(in.Value))
	if err != nil {
		return "", err
	}
	if n > 0 {
		return fmt.Sprintf("%s is already taken.", in.Field), nil
	}
	return "", nil
}

func callback(ctx context.Context, env Env, in Input) (string, error) {
	var fn Callback
	if env != nil {
		fn, _ = env.Callback(in.Params)
	}
	if fn == nil {
		return "", &InvalidRuleError{Field: in.Field, Rule: "callback", Reason: fmt.Sprintf("callback %q is not defined", in.Params)}
	}
	return fn(ctx, in.Field, in.Value)
}

// Package conditions evaluates typed comparisons against run context fields.
// A misconfigured condition fails closed: unknown operators and evaluation
// errors yield false, never a propagated error.
package conditions

import (
	"strconv"
	"strings"
	"time"

	"github.com/calderio/automaton/internal/expressions"
)

// Operator names supported by Evaluate.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGT          = "gt"
	OpGTE         = "gte"
	OpLT          = "lt"
	OpLTE         = "lte"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Evaluate resolves field against the context data and applies the operator
// to the resolved value and expected. It never panics or returns an error.
func Evaluate(field, operator string, expected any, data map[string]any) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			result = false
		}
	}()

	actual, _ := expressions.ResolvePath(data, field)

	switch operator {
	case OpEquals:
		return valueEquals(actual, expected)
	case OpNotEquals:
		return !valueEquals(actual, expected)
	case OpContains:
		return contains(actual, expected)
	case OpNotContains:
		return !contains(actual, expected)
	case OpStartsWith:
		return strings.HasPrefix(lower(actual), lower(expected))
	case OpEndsWith:
		return strings.HasSuffix(lower(actual), lower(expected))
	case OpGT:
		cmp, ok := compare(actual, expected)
		return ok && cmp > 0
	case OpGTE:
		cmp, ok := compare(actual, expected)
		return ok && cmp >= 0
	case OpLT:
		cmp, ok := compare(actual, expected)
		return ok && cmp < 0
	case OpLTE:
		cmp, ok := compare(actual, expected)
		return ok && cmp <= 0
	case OpIsEmpty:
		return isEmpty(actual)
	case OpIsNotEmpty:
		return !isEmpty(actual)
	case OpIn:
		return membership(actual, expected)
	case OpNotIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if valueEquals(actual, item) {
				return false
			}
		}
		return true
	default:
		// Unknown operator fails closed.
		return false
	}
}

// valueEquals implements the cross-type equality rules:
// nil equals only nil, numeric strings cross-compare with numbers, booleans
// compare against "true"/"false" literals, strings compare case-insensitively.
func valueEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if na, okA := toNumber(a); okA {
		if nb, okB := toNumber(b); okB {
			return na == nb
		}
	}

	if ba, okA := toBool(a); okA {
		if bb, okB := toBool(b); okB {
			return ba == bb
		}
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.EqualFold(sa, sb)
	}

	return a == b
}

// contains is substring match (case-insensitive) for strings and element
// membership (by valueEquals) for arrays; anything else is false.
func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(Stringify(expected)))
	case []any:
		for _, item := range v {
			if valueEquals(item, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// membership checks actual ∈ expected when expected is an array.
func membership(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if valueEquals(actual, item) {
			return true
		}
	}
	return false
}

// compare orders two values: numeric coercion first, then date coercion,
// then raw string comparison. The first coercion that succeeds for both
// sides wins. Returns ok=false only if either side is nil.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if na, okA := toNumber(a); okA {
		if nb, okB := toNumber(b); okB {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	if ta, okA := toTime(a); okA {
		if tb, okB := toTime(b); okB {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return strings.Compare(Stringify(a), Stringify(b)), true
}

// isEmpty is true for nil, blank/whitespace-only strings, zero-length
// arrays, and zero-key objects.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Stringify renders a value for string comparison.
func Stringify(v any) string {
	return expressions.Stringify(v)
}

func lower(v any) string {
	return strings.ToLower(Stringify(v))
}

package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Interpolate resolves {{path.to.value}} placeholders in a template string
// against the given context map. A placeholder whose path resolves to
// nothing interpolates to the empty string; the template itself is never an
// error source. Nested placeholders are not supported.
func Interpolate(template string, data map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed marker: emit the rest verbatim.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if val, ok := ResolvePath(data, path); ok {
			result.WriteString(Stringify(val))
		}

		i = end + 2
	}

	return result.String()
}

// InterpolateConfig returns a copy of the config with every string value
// (including strings nested in maps and slices) interpolated against data.
func InterpolateConfig(cfg map[string]any, data map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = InterpolateValue(v, data)
	}
	return out
}

// InterpolateValue interpolates a single value of any shape: strings are
// templated, maps and slices are walked, everything else passes through.
func InterpolateValue(v any, data map[string]any) any {
	switch t := v.(type) {
	case string:
		return Interpolate(t, data)
	case map[string]any:
		return InterpolateConfig(t, data)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = InterpolateValue(item, data)
		}
		return out
	default:
		return v
	}
}

// ResolvePath navigates into nested maps using a dot-delimited path.
// The second return reports whether the full path resolved.
func ResolvePath(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	// Direct key lookup first (supports keys containing dots).
	if val, ok := data[path]; ok {
		return val, true
	}

	var current any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Stringify converts a resolved value into its template representation.
// Strings embed as-is; complex values JSON-encode inline.
func Stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Package actions implements the closed set of workflow action handlers.
// Each handler interpolates its own config against the run context and calls
// a narrow external collaborator or the store. Preconditions that are not
// met produce a soft skip (success output with skipped=true), never a run
// failure; unrecoverable problems return an error.
package actions

import (
	"context"
	"encoding/json"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

// Handler executes one action type against a run context.
type Handler interface {
	Type() schema.ActionType
	Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error)
}

// Skip builds the soft-skip output shape.
func Skip(reason string) map[string]any {
	return map[string]any{"skipped": true, "reason": reason}
}

// Skipped reports whether an action output is a soft skip.
func Skipped(output map[string]any) bool {
	v, _ := output["skipped"].(bool)
	return v
}

// resolveRef resolves a handler input that may be given either as a literal
// (possibly templated) config value at key, or indirectly via a "<key>_field"
// entry naming a context path.
func resolveRef(cfg schema.StepConfig, data map[string]any, key string) string {
	if fieldPath := stringParam(cfg, key+"_field", ""); fieldPath != "" {
		if v, ok := expressions.ResolvePath(data, fieldPath); ok {
			return expressions.Stringify(v)
		}
		return ""
	}
	return expressions.Interpolate(stringParam(cfg, key, ""), data)
}

// Param helpers used by all handler files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return mm
}

func stringSliceParam(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package events

import (
	"github.com/calderio/automaton/internal/conditions"
	"github.com/calderio/automaton/internal/expressions"
)

// filterOperators maps trigger filter operator keys onto condition
// evaluator operators.
var filterOperators = map[string]string{
	"$in":       conditions.OpIn,
	"$ne":       conditions.OpNotEquals,
	"$gt":       conditions.OpGT,
	"$gte":      conditions.OpGTE,
	"$lt":       conditions.OpLT,
	"$lte":      conditions.OpLTE,
	"$contains": conditions.OpContains,
}

// matchFilters checks every filter predicate against the entity data. A key
// mapped to a plain value is an equality check (with the evaluator's
// case-insensitive string fallback); a key mapped to an operator object
// applies each $-operator in it. All predicates must hold.
func matchFilters(filters map[string]any, data map[string]any) bool {
	if len(filters) == 0 {
		return true
	}
	if data == nil {
		data = map[string]any{}
	}

	for field, expected := range filters {
		ops, isOps := operatorObject(expected)
		if !isOps {
			if !conditions.Evaluate(field, conditions.OpEquals, expected, data) {
				return false
			}
			continue
		}

		for op, operand := range ops {
			if op == "$exists" {
				want, _ := operand.(bool)
				_, present := expressions.ResolvePath(data, field)
				if present != want {
					return false
				}
				continue
			}

			evalOp, known := filterOperators[op]
			if !known {
				// Unknown operator fails closed, same as conditions.
				return false
			}
			if !conditions.Evaluate(field, evalOp, operand, data) {
				return false
			}
		}
	}
	return true
}

// operatorObject reports whether the expected value is an operator object:
// a map whose every key starts with '$'.
func operatorObject(expected any) (map[string]any, bool) {
	m, ok := expected.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

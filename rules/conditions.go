package rules

import (
	"reflect"
	"strings"
)

// EvaluateConditions evaluates a rule's condition tree against an event
// context. A nil tree means the rule is unconditional and always passes.
// Leaves are evaluated in list order; a leaf over a missing field, a wrong
// type, or an unknown operator is simply not a match. Evaluation never fails.
func EvaluateConditions(tree *ConditionTree, ctx EventContext) bool {
	if tree == nil {
		return true
	}
	if tree.Operator == OperatorOr {
		for _, rule := range tree.Rules {
			if evaluateLeaf(rule, ctx) {
				return true
			}
		}
		return false
	}
	for _, rule := range tree.Rules {
		if !evaluateLeaf(rule, ctx) {
			return false
		}
	}
	return true
}

func evaluateLeaf(rule ConditionRule, ctx EventContext) bool {
	actual, ok := ctx[rule.Field]
	if !ok {
		return false
	}

	switch rule.Operator {
	case CompareEquals:
		if a, aok := asNumber(actual); aok {
			if e, eok := asNumber(rule.Value); eok {
				return a == e
			}
		}
		return reflect.DeepEqual(actual, rule.Value)

	case CompareGt, CompareLt, CompareGte, CompareLte:
		a, aok := asNumber(actual)
		e, eok := asNumber(rule.Value)
		if !aok || !eok {
			return false
		}
		switch rule.Operator {
		case CompareGt:
			return a > e
		case CompareLt:
			return a < e
		case CompareGte:
			return a >= e
		default:
			return a <= e
		}

	case CompareContains:
		if s, ok := actual.(string); ok {
			sub, ok := rule.Value.(string)
			return ok && strings.Contains(s, sub)
		}
		return listContains(actual, rule.Value)
	}
	return false
}

// listContains reports whether a context list value holds an element equal to
// want, with numeric values compared numerically.
func listContains(actual, want any) bool {
	rv := reflect.ValueOf(actual)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	wantNum, wantIsNum := asNumber(want)
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if wantIsNum {
			if n, ok := asNumber(elem); ok && n == wantNum {
				return true
			}
			continue
		}
		if reflect.DeepEqual(elem, want) {
			return true
		}
	}
	return false
}

// asNumber normalizes any Go numeric type to float64. JSON decoding yields
// float64, but contexts built in process may carry ints.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

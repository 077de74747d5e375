package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/flowbotio/flowbot/pkg/models"
)

// evalNode evaluates one AST node against the context.
func evalNode(n exprNode, ctx map[string]any) (bool, error) {
	switch node := n.(type) {
	case orNode:
		for _, part := range node.parts {
			ok, err := evalNode(part, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case andNode:
		for _, part := range node.parts {
			ok, err := evalNode(part, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case notNode:
		ok, err := evalNode(node.inner, ctx)
		return !ok, err
	case compareNode:
		return evalCompare(node, ctx)
	case truthNode:
		return truthy(resolve(node.op, ctx)), nil
	}
	return false, fmt.Errorf("unknown node type %T", n)
}

// resolve produces the runtime value of an operand. Unresolvable paths
// yield the MISSING sentinel.
func resolve(op operand, ctx map[string]any) any {
	if op.isPath {
		return models.LookupPath(ctx, op.path)
	}
	return op.value
}

func evalCompare(node compareNode, ctx map[string]any) (bool, error) {
	left := resolve(node.left, ctx)

	switch node.op {
	case "is_null":
		return isNull(left), nil
	case "not_is_null":
		return !isNull(left), nil
	case "regex":
		if models.IsMissing(left) {
			return false, nil
		}
		return node.pattern.MatchString(toString(left)), nil
	case "in", "not_in":
		found := false
		if !models.IsMissing(left) {
			for _, item := range node.list {
				if looseEqual(left, resolve(item, ctx)) {
					found = true
					break
				}
			}
		}
		if node.op == "not_in" {
			return !found, nil
		}
		return found, nil
	}

	right := resolve(*node.right, ctx)
	switch node.op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case ">", "<", ">=", "<=":
		return ordered(node.op, left, right), nil
	case "~":
		return contains(left, right), nil
	case "!~":
		return !contains(left, right), nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", node.op)
}

// isNull is true for the MISSING sentinel, explicit null, and the empty
// string.
func isNull(v any) bool {
	return models.IsMissing(v) || v == nil || v == ""
}

// equal implements `==`. Comparing to None matches only absent or explicit
// null values. String/number pairs compare numerically when the string
// parses as a number.
func equal(left, right any) bool {
	if right == nil {
		return models.IsMissing(left) || left == nil
	}
	if left == nil {
		return models.IsMissing(right)
	}
	if models.IsMissing(left) || models.IsMissing(right) {
		return false
	}
	return looseEqual(left, right)
}

func looseEqual(left, right any) bool {
	if lf, lok := asNumber(left); lok {
		if rf, rok := asNumber(right); rok {
			return lf == rf
		}
	}
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			return ls == rs
		}
	}
	return reflect.DeepEqual(left, right)
}

// ordered implements > < >= <=. Missing fields and incomparable operands
// are false.
func ordered(op string, left, right any) bool {
	if models.IsMissing(left) || models.IsMissing(right) || left == nil || right == nil {
		return false
	}
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	var cmp int
	switch {
	case lok && rok:
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	default:
		ls, lsok := left.(string)
		rs, rsok := right.(string)
		if !lsok || !rsok {
			return false
		}
		cmp = strings.Compare(ls, rs)
	}
	switch op {
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	}
	return false
}

// contains implements `~`: substring match for strings, membership for
// lists.
func contains(left, right any) bool {
	if models.IsMissing(left) || left == nil {
		return false
	}
	if list, ok := left.([]any); ok {
		for _, item := range list {
			if looseEqual(item, right) {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(left), toString(right))
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return !models.IsMissing(v)
}

func asNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package placeholder

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/flowbotio/flowbot/pkg/models"
)

// pollable is the subset of a task handle the ready/not_ready modifiers
// inspect.
type pollable interface {
	Ready() bool
}

// modifierFunc transforms the chain value. A modifier that cannot handle
// its input returns it untouched and logs a warning — expansion failures
// never abort a step.
type modifierFunc func(e *Expander, v any, arg string, ctx map[string]any) any

// modifierRegistry is the closed set of modifiers, populated at package
// init. Dynamic dispatch is by name only.
var modifierRegistry map[string]modifierFunc

func init() {
	modifierRegistry = map[string]modifierFunc{
		// Data shape.
		"length":     modLength,
		"truncate":   modTruncate,
		"regex":      modRegex,
		"list":       modList,
		"comma":      modComma,
		"expand":     modIdentity, // splicing is handled by the list expander
		"code":       modCode,
		"upper":      modUpper,
		"lower":      modLower,
		"title":      modTitle,
		"capitalize": modCapitalize,
		"case":       modCase,

		// Arithmetic.
		"+": arith('+'),
		"-": arith('-'),
		"*": arith('*'),
		"/": arith('/'),
		"%": arith('%'),

		// Temporal.
		"seconds":   modSeconds,
		"shift":     modShift,
		"to_date":   truncPeriod("date"),
		"to_hour":   truncPeriod("hour"),
		"to_minute": truncPeriod("minute"),
		"to_second": truncPeriod("second"),
		"to_week":   truncPeriod("week"),
		"to_month":  truncPeriod("month"),
		"to_year":   truncPeriod("year"),
		"format":    modFormat,

		// Conditional.
		"equals":    modEquals,
		"in_list":   modInList,
		"exists":    modExists,
		"is_null":   modIsNull,
		"ready":     modReady,
		"not_ready": modNotReady,
		"value":     modValue,
		"fallback":  modFallback,
	}
}

// apply dispatches one modifier. Unknown names leave the value untouched.
func (e *Expander) apply(v any, mod modifier, ctx map[string]any) any {
	fn, ok := modifierRegistry[mod.name]
	if !ok {
		slog.Warn("Unknown placeholder modifier", "modifier", mod.name)
		return v
	}
	return fn(e, v, mod.arg, ctx)
}

func modIdentity(_ *Expander, v any, _ string, _ map[string]any) any { return v }

func modLength(_ *Expander, v any, _ string, _ map[string]any) any {
	switch val := v.(type) {
	case string:
		return len([]rune(val))
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	}
	slog.Warn("length modifier applied to unsupported type")
	return v
}

func modTruncate(_ *Expander, v any, arg string, _ map[string]any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 0 {
		slog.Warn("Invalid truncate length", "arg", arg)
		return v
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func modRegex(_ *Expander, v any, arg string, _ map[string]any) any {
	re, err := regexp.Compile(arg)
	if err != nil {
		slog.Warn("Invalid regex in placeholder modifier", "pattern", arg, "error", err)
		return v
	}
	match := re.FindString(stringify(v))
	if match == "" {
		return models.Missing
	}
	return match
}

func modList(_ *Expander, v any, _ string, _ map[string]any) any {
	if models.IsMissing(v) {
		return v
	}
	if _, ok := v.([]any); ok {
		return v
	}
	return []any{v}
}

func modComma(_ *Expander, v any, _ string, _ map[string]any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	parts := make([]string, len(list))
	for i, el := range list {
		parts[i] = stringify(el)
	}
	return strings.Join(parts, ", ")
}

func modCode(_ *Expander, v any, _ string, _ map[string]any) any {
	if models.IsMissing(v) {
		return v
	}
	return "<code>" + stringify(v) + "</code>"
}

func modUpper(_ *Expander, v any, _ string, _ map[string]any) any {
	return strings.ToUpper(stringify(v))
}

func modLower(_ *Expander, v any, _ string, _ map[string]any) any {
	return strings.ToLower(stringify(v))
}

var titleCaser = cases.Title(language.Und)

func modTitle(_ *Expander, v any, _ string, _ map[string]any) any {
	return titleCaser.String(stringify(v))
}

func modCapitalize(_ *Expander, v any, _ string, _ map[string]any) any {
	s := stringify(v)
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}

func modCase(e *Expander, v any, arg string, ctx map[string]any) any {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "upper":
		return modUpper(e, v, "", ctx)
	case "lower":
		return modLower(e, v, "", ctx)
	}
	slog.Warn("Unknown case modifier argument", "arg", arg)
	return v
}

// arith builds the modifier for one arithmetic operator. The operand may
// itself be a placeholder. The result keeps the numeric type: two integer
// operands yield an int (division only when it divides evenly).
func arith(op byte) modifierFunc {
	return func(e *Expander, v any, arg string, ctx map[string]any) any {
		left, leftInt, ok := toNumber(v)
		if !ok {
			slog.Warn("Arithmetic modifier on non-numeric value", "op", string(op))
			return v
		}
		right, rightInt, ok := toNumber(e.expandArg(arg, ctx))
		if !ok {
			slog.Warn("Arithmetic modifier with non-numeric operand",
				"op", string(op), "operand", arg)
			return v
		}

		var result float64
		switch op {
		case '+':
			result = left + right
		case '-':
			result = left - right
		case '*':
			result = left * right
		case '/':
			if right == 0 {
				slog.Warn("Division by zero in placeholder modifier")
				return v
			}
			result = left / right
		case '%':
			if right == 0 {
				slog.Warn("Modulo by zero in placeholder modifier")
				return v
			}
			result = math.Mod(left, right)
		}

		if leftInt && rightInt && result == math.Trunc(result) {
			return int(result)
		}
		return result
	}
}

// looseEquals compares numerically when both sides parse as numbers,
// otherwise by string representation.
func looseEquals(a any, b any) bool {
	if an, _, okA := toNumber(a); okA {
		if bn, _, okB := toNumber(b); okB {
			return an == bn
		}
	}
	return stringify(a) == stringify(b)
}

func modEquals(e *Expander, v any, arg string, ctx map[string]any) any {
	if models.IsMissing(v) {
		return false
	}
	return looseEquals(v, e.expandArg(arg, ctx))
}

func modInList(e *Expander, v any, arg string, ctx map[string]any) any {
	if models.IsMissing(v) {
		return false
	}
	for _, item := range strings.Split(arg, ",") {
		if looseEquals(v, e.expandArg(strings.TrimSpace(item), ctx)) {
			return true
		}
	}
	return false
}

func modExists(_ *Expander, v any, _ string, _ map[string]any) any {
	return !models.IsMissing(v) && v != nil
}

func modIsNull(_ *Expander, v any, _ string, _ map[string]any) any {
	return models.IsMissing(v) || v == nil || v == ""
}

func modReady(_ *Expander, v any, _ string, _ map[string]any) any {
	h, ok := v.(pollable)
	if !ok {
		slog.Warn("ready modifier applied to a non-handle value")
		return false
	}
	return h.Ready()
}

func modNotReady(_ *Expander, v any, _ string, _ map[string]any) any {
	h, ok := v.(pollable)
	if !ok {
		slog.Warn("not_ready modifier applied to a non-handle value")
		return false
	}
	return !h.Ready()
}

// modValue picks the true branch of a preceding conditional modifier: when
// the chain value is boolean true it is replaced by the argument, otherwise
// by MISSING so a following fallback can take over.
func modValue(e *Expander, v any, arg string, ctx map[string]any) any {
	if b, ok := v.(bool); ok && b {
		return e.expandArg(arg, ctx)
	}
	return models.Missing
}

// modFallback replaces MISSING, nil, and boolean false with the argument.
func modFallback(e *Expander, v any, arg string, ctx map[string]any) any {
	if models.IsMissing(v) || v == nil {
		return e.expandArg(arg, ctx)
	}
	if b, ok := v.(bool); ok && !b {
		return e.expandArg(arg, ctx)
	}
	return v
}

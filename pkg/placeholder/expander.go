package placeholder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flowbotio/flowbot/pkg/models"
)

// templateCacheSize bounds the compiled-template cache. Templates are keyed
// by their full text (the fingerprint), so repeated step executions reuse
// the parsed form.
const templateCacheSize = 512

// Expander resolves placeholders against a context map. It is safe for
// concurrent use; expansion is pure CPU and never suspends.
type Expander struct {
	templates *lru.Cache[string, *template]
}

// NewExpander creates an expander with an empty template cache.
func NewExpander() *Expander {
	cache, _ := lru.New[string, *template](templateCacheSize)
	return &Expander{templates: cache}
}

// Expand recursively resolves all placeholders inside v — strings, mappings,
// and sequences — producing a fully materialized value. Unresolved
// placeholders render back as their original literal text.
func (e *Expander) Expand(v any, ctx map[string]any) any {
	switch val := v.(type) {
	case string:
		return e.ExpandString(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = e.Expand(item, ctx)
		}
		return out
	case []any:
		return e.expandList(val, ctx)
	default:
		return v
	}
}

// expandList expands each element. An element that is a single placeholder
// whose final modifier is `expand` and whose value is a list is replaced by
// splicing its children into the parent list; adjacent static elements
// survive.
func (e *Expander) expandList(list []any, ctx map[string]any) []any {
	out := make([]any, 0, len(list))
	for _, el := range list {
		s, isString := el.(string)
		if !isString {
			out = append(out, e.Expand(el, ctx))
			continue
		}
		tpl := e.parse(s)
		ph := tpl.single()
		if ph == nil || !ph.wantsExpand() {
			out = append(out, e.ExpandString(s, ctx))
			continue
		}
		val := e.eval(ph, ctx)
		if children, ok := val.([]any); ok {
			out = append(out, children...)
			continue
		}
		if models.IsMissing(val) {
			out = append(out, ph.raw)
			continue
		}
		out = append(out, val)
	}
	return out
}

// ExpandString resolves the placeholders of one template string.
//
// When the string consists of exactly one placeholder the resolved value
// keeps its type, and a final string value goes through type inference
// (pure-numeric literals become int/float, "true"/"false" become booleans).
// Embedded placeholders are string-spliced. A placeholder that resolves to
// MISSING renders back as its original literal text.
func (e *Expander) ExpandString(s string, ctx map[string]any) any {
	tpl := e.parse(s)
	if !tpl.hasPlaceholder() {
		return s
	}
	if ph := tpl.single(); ph != nil {
		val := e.eval(ph, ctx)
		if models.IsMissing(val) {
			return ph.raw
		}
		if str, ok := val.(string); ok {
			return inferType(str)
		}
		return val
	}

	var b strings.Builder
	for _, n := range tpl.nodes {
		if n.ph == nil {
			b.WriteString(n.text)
			continue
		}
		val := e.eval(n.ph, ctx)
		if models.IsMissing(val) {
			b.WriteString(n.ph.raw)
			continue
		}
		b.WriteString(stringify(val))
	}
	return b.String()
}

// parse returns the cached parsed template for s.
func (e *Expander) parse(s string) *template {
	if tpl, ok := e.templates.Get(s); ok {
		return tpl
	}
	tpl := parseTemplate(s)
	e.templates.Add(s, tpl)
	return tpl
}

// eval resolves one placeholder: source first, then the modifier chain
// left to right.
func (e *Expander) eval(ph *placeholder, ctx map[string]any) any {
	var val any
	if ph.source.quoted {
		val = ph.source.literal
	} else {
		path := ph.source.path
		if strings.ContainsRune(path, '{') {
			// Nested placeholder inside the path itself.
			path = stringify(e.ExpandString(path, ctx))
		}
		val = models.LookupPath(ctx, path)
	}
	for _, mod := range ph.modifiers {
		val = e.apply(val, mod, ctx)
	}
	return val
}

// wantsExpand reports whether the final modifier is `expand`.
func (ph *placeholder) wantsExpand() bool {
	n := len(ph.modifiers)
	return n > 0 && ph.modifiers[n-1].name == "expand"
}

// expandArg resolves nested placeholders inside a modifier argument,
// keeping the value's type when the argument is a single placeholder.
func (e *Expander) expandArg(arg string, ctx map[string]any) any {
	if !strings.ContainsRune(arg, '{') {
		if lit, ok := unquote(strings.TrimSpace(arg)); ok {
			return lit
		}
		return arg
	}
	return e.ExpandString(arg, ctx)
}

// inferType converts pure-numeric literals to int/float and boolean words
// to bool; anything else stays a string.
func inferType(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// stringify renders a resolved value for string splicing.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(layoutDatetimeFull)
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toNumber coerces v to a float, reporting whether the original carried an
// integer representation.
func toNumber(v any) (f float64, isInt bool, ok bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true, true
	case int64:
		return float64(val), true, true
	case float64:
		return val, val == math.Trunc(val), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return float64(n), true, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, false, true
		}
	case bool:
		if val {
			return 1, true, true
		}
		return 0, true, true
	}
	return 0, false, false
}

// Package condition compiles and evaluates the boolean expression DSL used
// by scenario triggers and step guards. Expressions reference event context
// fields as $dotted.paths and combine comparisons with and/or/not.
package condition

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const compiledCacheSize = 512

// Compiled is a parsed, reusable condition expression.
type Compiled struct {
	src        string
	root       exprNode
	searchPath string
}

// Source returns the original expression text.
func (c *Compiled) Source() string { return c.src }

// SearchPath returns the first context path the expression references.
// Trigger indexing uses it to bucket condition triggers by field.
func (c *Compiled) SearchPath() string { return c.searchPath }

// Eval evaluates the expression against the context. Unresolvable paths
// follow missing-field semantics rather than erroring.
func (c *Compiled) Eval(ctx map[string]any) (bool, error) {
	return evalNode(c.root, ctx)
}

// Evaluator compiles expressions with an LRU cache keyed by source text.
type Evaluator struct {
	cache *lru.Cache[string, *Compiled]
}

func NewEvaluator() *Evaluator {
	cache, _ := lru.New[string, *Compiled](compiledCacheSize)
	return &Evaluator{cache: cache}
}

// Compile parses the expression, reusing a cached result when available.
func (e *Evaluator) Compile(src string) (*Compiled, error) {
	if c, ok := e.cache.Get(src); ok {
		return c, nil
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("lex condition: %w", err)
	}
	root, searchPath, err := parse(tokens)
	if err != nil {
		return nil, fmt.Errorf("parse condition: %w", err)
	}
	c := &Compiled{src: src, root: root, searchPath: searchPath}
	e.cache.Add(src, c)
	return c, nil
}

// Evaluate compiles and evaluates in one call.
func (e *Evaluator) Evaluate(src string, ctx map[string]any) (bool, error) {
	c, err := e.Compile(src)
	if err != nil {
		return false, err
	}
	return c.Eval(ctx)
}

// BuildCondition assembles a disjunction from structured trigger configs.
// Each map becomes one parenthesized conjunct: scalar entries turn into
// equality checks against $key, and an optional "condition" entry is
// appended verbatim. Maps are joined with `or`.
func BuildCondition(configs []map[string]any) string {
	var groups []string
	for _, cfg := range configs {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			if k != "condition" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		var terms []string
		for _, k := range keys {
			terms = append(terms, fmt.Sprintf("$%s == %s", k, literal(cfg[k])))
		}
		if raw, ok := cfg["condition"].(string); ok && raw != "" {
			terms = append(terms, raw)
		}
		if len(terms) == 0 {
			continue
		}
		groups = append(groups, "("+strings.Join(terms, " and ")+")")
	}
	return strings.Join(groups, " or ")
}

func literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", `\'`) + "'"
	case nil:
		return "None"
	default:
		return fmt.Sprintf("%v", val)
	}
}
